package proof

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

// JWSSigner signs credentials as compact ES256 JWS tokens over a digest of
// the proof-less credential document.
type JWSSigner struct {
	key *ecdsa.PrivateKey
}

// NewJWSSigner parses an ECDSA private key in PEM form.
func NewJWSSigner(pemKey []byte) (*JWSSigner, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid signing key")
	}
	return &JWSSigner{key: key}, nil
}

type proofClaims struct {
	CredentialID     string `json:"vc_id"`
	CredentialDigest string `json:"vc_digest"`
	jwt.RegisteredClaims
}

func (s *JWSSigner) Sign(_ context.Context, vc *models.VerifiableCredential, issuerDID string, _ models.ProofOptions) (string, error) {
	digest, err := credentialDigest(vc)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, proofClaims{
		CredentialID:     vc.ID,
		CredentialDigest: digest,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuerDID,
			Subject:  subjectID(vc),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	})
	return token.SignedString(s.key)
}

func (s *JWSSigner) Verify(_ context.Context, vc *models.VerifiableCredential) (bool, error) {
	if len(vc.Proof) == 0 {
		return false, nil
	}
	claims := &proofClaims{}
	token, err := jwt.ParseWithClaims(vc.Proof[len(vc.Proof)-1].ProofValue, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, dErrors.New(dErrors.CodeInvalidInput, "unexpected signing method")
			}
			return &s.key.PublicKey, nil
		})
	if err != nil || !token.Valid {
		return false, nil
	}

	// The digest covers the proof-less document; strip proofs before
	// recomputing.
	unsigned := vc.Clone()
	unsigned.Proof = nil
	digest, err := credentialDigest(unsigned)
	if err != nil {
		return false, err
	}
	return claims.CredentialID == vc.ID && claims.CredentialDigest == digest, nil
}

// credentialDigest hashes the JSON serialization of the credential without
// its proof section. Serialization is deterministic because encoding/json
// sorts map keys.
func credentialDigest(vc *models.VerifiableCredential) (string, error) {
	unsigned := vc.Clone()
	unsigned.Proof = nil
	payload, err := json.Marshal(unsigned)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to serialize credential")
	}
	sum := sha256.Sum256(payload)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

func subjectID(vc *models.VerifiableCredential) string {
	if id, ok := vc.Subject["id"].(string); ok {
		return id
	}
	return ""
}
