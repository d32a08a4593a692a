// Package builder assembles verifiable credentials from a template and the
// resolved subject claims.
package builder

import (
	"time"

	"attestia/internal/credential/expr"
	"attestia/internal/credential/models"
	"attestia/internal/provider"
	dErrors "attestia/pkg/domain-errors"
)

// Input carries everything the builder needs for one credential.
type Input struct {
	Template   models.Template
	SubjectDID string
	IssuerDID  string
	IssuerName string
	Claims     map[string]any
	// Context is the evaluation context, used by conditional expiration.
	Context map[string]any
	// Sources are the provider responses backing the claims; successful ones
	// become evidence entries when the template asks for evidence.
	Sources []*provider.Response
	Privacy models.PrivacyOptions
}

// Builder assembles credential documents. Stateless apart from the clock.
type Builder struct {
	now func() time.Time
}

func New() *Builder {
	return &Builder{now: time.Now}
}

// WithClock substitutes the time source, for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build assembles the credential. The result has no proof; the proof
// attacher adds it after signing.
func (b *Builder) Build(in Input) (*models.VerifiableCredential, error) {
	issuedAt := b.now().UTC()

	subject := map[string]any{"id": in.SubjectDID}
	for k, v := range in.Claims {
		if omitted(in.Privacy, k) {
			continue
		}
		subject[k] = v
	}

	vc := &models.VerifiableCredential{
		Context: append([]string(nil), models.DefaultContext...),
		ID:      models.NewCredentialURN(),
		Type:    append([]string{"VerifiableCredential"}, in.Template.Types...),
		Issuer: models.Issuer{
			ID:   in.IssuerDID,
			Name: in.IssuerName,
		},
		Subject:      subject,
		IssuanceDate: issuedAt,
	}

	if in.Template.SchemaURL != "" {
		vc.Schema = &models.Schema{ID: in.Template.SchemaURL, Type: "JsonSchemaValidator2018"}
	}
	if in.Template.Revocation.Revocable && in.Template.Revocation.StatusURL != "" {
		vc.Status = &models.Status{
			ID:   in.Template.Revocation.StatusURL + "#" + vc.ID,
			Type: "RevocationList2020Status",
		}
	}
	if in.Template.RefreshURL != "" {
		vc.RefreshService = &models.RefreshService{
			ID:   in.Template.RefreshURL,
			Type: "ManualRefreshService2018",
		}
	}
	if in.Template.EvidenceNeeded {
		vc.Evidence = evidenceFrom(in.Sources)
	}

	exp, err := b.expirationFor(in.Template.Expiration, issuedAt, in.Context)
	if err != nil {
		return nil, err
	}
	vc.ExpirationDate = exp

	return vc, nil
}

// Reverify recomputes a sliding expiration from the present moment. Fixed
// and never policies are untouched.
func (b *Builder) Reverify(vc *models.VerifiableCredential, policy models.ExpirationPolicy) error {
	if policy.Kind != models.ExpireSliding {
		return nil
	}
	exp, err := b.expirationFor(policy, b.now().UTC(), nil)
	if err != nil {
		return err
	}
	vc.ExpirationDate = exp
	return nil
}

func (b *Builder) expirationFor(policy models.ExpirationPolicy, from time.Time, ctx map[string]any) (*time.Time, error) {
	switch policy.Kind {
	case models.ExpireNever, "":
		return nil, nil
	case models.ExpireFixed, models.ExpireSliding:
		return addDuration(policy.Duration, from)
	case models.ExpireConditional:
		// Condition true → the shorter duration applies; otherwise no
		// expiration is set.
		if policy.Condition == "" {
			return addDuration(policy.Duration, from)
		}
		applies, err := expr.EvalBool(policy.Condition, ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "expiration condition failed")
		}
		if !applies {
			return nil, nil
		}
		return addDuration(policy.Duration, from)
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			"unknown expiration kind: "+string(policy.Kind))
	}
}

func addDuration(iso string, from time.Time) (*time.Time, error) {
	d, err := parseISODuration(iso)
	if err != nil {
		return nil, err
	}
	t := d.add(from)
	return &t, nil
}

func evidenceFrom(sources []*provider.Response) []models.Evidence {
	var out []models.Evidence
	for _, resp := range sources {
		if resp == nil || !resp.Success {
			continue
		}
		out = append(out, models.Evidence{
			ID:          models.NewCredentialURN(),
			Type:        "DataVerification",
			SourceID:    resp.Metadata.ProviderID,
			Timestamp:   resp.Metadata.Timestamp,
			Reliability: resp.Metadata.Reliability,
		})
	}
	return out
}

func omitted(privacy models.PrivacyOptions, claim string) bool {
	for _, c := range privacy.OmitClaims {
		if c == claim {
			return true
		}
	}
	return false
}
