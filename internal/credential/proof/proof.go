// Package proof attaches cryptographic proofs to built credentials via an
// external signing collaborator.
package proof

import (
	"context"
	"time"

	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

// Signer is the external signing collaborator.
type Signer interface {
	// Sign produces a proof value over the credential payload for the given
	// issuer DID.
	Sign(ctx context.Context, vc *models.VerifiableCredential, issuerDID string, opts models.ProofOptions) (string, error)
	// Verify checks an attached proof.
	Verify(ctx context.Context, vc *models.VerifiableCredential) (bool, error)
}

const defaultProofType = "JsonWebSignature2020"

// Attacher embeds signer-produced proofs into credentials.
type Attacher struct {
	signer Signer
	now    func() time.Time
}

func NewAttacher(signer Signer) *Attacher {
	return &Attacher{signer: signer, now: time.Now}
}

// WithClock substitutes the time source, for tests.
func (a *Attacher) WithClock(now func() time.Time) *Attacher {
	a.now = now
	return a
}

// Attach signs the credential and returns a new credential with the proof
// embedded. The input credential is never mutated; on signing failure it is
// returned untouched alongside a proof_attachment_failed error.
func (a *Attacher) Attach(ctx context.Context, vc *models.VerifiableCredential, issuerDID string, opts models.ProofOptions) (*models.VerifiableCredential, error) {
	signed := vc.Clone()

	value, err := a.signer.Sign(ctx, signed, issuerDID, opts)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProofAttachmentFailed,
			"signing collaborator rejected credential "+vc.ID)
	}

	purpose := opts.ProofPurpose
	if purpose == "" {
		purpose = "assertionMethod"
	}
	method := opts.VerificationMethod
	if method == "" {
		method = issuerDID + "#key-1"
	}

	signed.Proof = append(signed.Proof, models.Proof{
		Type:               defaultProofType,
		Created:            a.now().UTC(),
		VerificationMethod: method,
		ProofPurpose:       purpose,
		ProofValue:         value,
	})
	return signed, nil
}

// Verify delegates to the signing collaborator.
func (a *Attacher) Verify(ctx context.Context, vc *models.VerifiableCredential) (bool, error) {
	if len(vc.Proof) == 0 {
		return false, nil
	}
	return a.signer.Verify(ctx, vc)
}
