// Package service runs the credential issuance pipeline: fetch, normalize,
// rule-evaluate, build, sign, store.
package service

import (
	"context"
	"log/slog"
	"time"

	"attestia/internal/audit"
	"attestia/internal/batch"
	"attestia/internal/credential/builder"
	"attestia/internal/credential/models"
	"attestia/internal/credential/normalize"
	"attestia/internal/credential/proof"
	"attestia/internal/credential/rules"
	"attestia/internal/credential/store"
	"attestia/internal/credential/template"
	"attestia/internal/provider"
	dErrors "attestia/pkg/domain-errors"
)

// DataFetcher is the aggregator surface the service consumes.
type DataFetcher interface {
	FetchForVC(ctx context.Context, dataType string, params map[string]string) ([]*provider.Response, error)
}

// Service is the issuance pipeline facade.
type Service struct {
	templates   *template.Registry
	providers   *provider.Registry
	normalizers *normalize.Registry
	calculator  *normalize.Calculator
	engine      *rules.Engine
	builder     *builder.Builder
	attacher    *proof.Attacher
	store       store.Store
	audit       audit.Publisher
	fetcher     DataFetcher
	issuerName  string
	batchLimit  int
	log         *slog.Logger
	now         func() time.Time
}

// Config wires the service's collaborators.
type Config struct {
	Templates   *template.Registry
	Providers   *provider.Registry
	Normalizers *normalize.Registry
	Calculator  *normalize.Calculator
	Engine      *rules.Engine
	Builder     *builder.Builder
	Attacher    *proof.Attacher
	Store       store.Store
	Audit       audit.Publisher
	Fetcher     DataFetcher
	IssuerName  string
	// BatchConcurrency caps batch parallelism when a request does not set
	// its own limit.
	BatchConcurrency int
	Logger           *slog.Logger
}

func New(cfg Config) *Service {
	s := &Service{
		templates:   cfg.Templates,
		providers:   cfg.Providers,
		normalizers: cfg.Normalizers,
		calculator:  cfg.Calculator,
		engine:      cfg.Engine,
		builder:     cfg.Builder,
		attacher:    cfg.Attacher,
		store:       cfg.Store,
		audit:       cfg.Audit,
		fetcher:     cfg.Fetcher,
		issuerName:  cfg.IssuerName,
		batchLimit:  cfg.BatchConcurrency,
		log:         cfg.Logger,
		now:         time.Now,
	}
	if s.audit == nil {
		s.audit = audit.NopPublisher{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Create runs the full pipeline for one request. Pipeline failures (unknown
// template, schema violations, rule rejections, signing failures) come back
// as a failed CreationResult with a non-empty error list; the returned error
// is reserved for malformed requests.
func (s *Service) Create(ctx context.Context, req models.IssuanceRequest) (*models.CreationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	startedAt := s.now()
	fail := func(errs ...string) *models.CreationResult {
		return &models.CreationResult{
			Success:   false,
			State:     models.StateFailed,
			Errors:    errs,
			StartedAt: startedAt,
			Duration:  s.now().Sub(startedAt),
		}
	}

	tmpl, err := s.templates.Get(req.TemplateID)
	if err != nil {
		return fail(err.Error()), nil
	}

	evalCtx := s.normalizers.BuildContext(req.ProviderData, s.now())
	s.calculator.Derive(evalCtx, req.ProviderData)

	claims, err := template.ResolveClaims(tmpl, evalCtx)
	if err != nil {
		return fail(err.Error()), nil
	}
	for k, v := range req.ExtraClaims {
		claims[k] = v
	}
	if violations := template.ValidateClaims(tmpl, claims); len(violations) > 0 {
		s.log.Info("schema validation rejected issuance",
			"template_id", tmpl.ID, "subject_did", req.SubjectDID, "violations", len(violations))
		return fail(violations...), nil
	}

	evalCtx["claims"] = claims
	decision := s.engine.Evaluate(tmpl.Rules, evalCtx)
	if !decision.Allowed {
		reason := decision.RejectReason
		s.log.Info("rule engine rejected issuance",
			"template_id", tmpl.ID, "subject_did", req.SubjectDID, "rule", decision.RejectedBy)
		s.audit.Emit(ctx, audit.Event{
			Action:     audit.ActionRejected,
			TemplateID: tmpl.ID,
			SubjectDID: req.SubjectDID,
			IssuerDID:  req.IssuerDID,
			Reason:     reason,
		})
		result := fail(reason)
		result.Warnings = decision.Warnings
		return result, nil
	}

	vc, err := s.builder.Build(builder.Input{
		Template:   tmpl,
		SubjectDID: req.SubjectDID,
		IssuerDID:  req.IssuerDID,
		IssuerName: s.issuerName,
		Claims:     claims,
		Context:    evalCtx,
		Sources:    req.ProviderData,
		Privacy:    req.Privacy,
	})
	if err != nil {
		return fail(err.Error()), nil
	}

	signed, err := s.attacher.Attach(ctx, vc, req.IssuerDID, req.Proof)
	if err != nil {
		return fail(err.Error()), nil
	}

	rec := &store.Record{
		ID:         signed.ID,
		Credential: signed,
		TemplateID: tmpl.ID,
		SubjectDID: req.SubjectDID,
		IssuerDID:  req.IssuerDID,
		State:      models.StateIssued,
		IssuedAt:   signed.IssuanceDate,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return fail("failed to persist credential: " + err.Error()), nil
	}

	s.audit.Emit(ctx, audit.Event{
		Action:       audit.ActionIssued,
		CredentialID: signed.ID,
		TemplateID:   tmpl.ID,
		SubjectDID:   req.SubjectDID,
		IssuerDID:    req.IssuerDID,
		Detail:       map[string]any{"mode": string(req.EffectiveMode())},
	})

	return &models.CreationResult{
		Success:    true,
		Credential: signed,
		State:      models.StateIssued,
		Quality:    decision.Quality,
		Compliance: models.ComplianceFor(decision.Quality),
		Warnings:   decision.Warnings,
		StartedAt:  startedAt,
		Duration:   s.now().Sub(startedAt),
	}, nil
}

// CreateBatch fans the requests out through the batch orchestrator.
func (s *Service) CreateBatch(ctx context.Context, req models.BatchRequest, onProgress batch.ProgressFunc) ([]*models.CreationResult, error) {
	if req.MaxConcurrency <= 0 {
		req.MaxConcurrency = s.batchLimit
	}
	return batch.New(s, s.log).Run(ctx, req, onProgress)
}

// Revoke marks a stored credential revoked and emits the lifecycle event.
func (s *Service) Revoke(ctx context.Context, credentialID, reason string) (bool, error) {
	if err := s.store.MarkRevoked(ctx, credentialID, reason, s.now().UTC()); err != nil {
		return false, err
	}
	s.audit.Emit(ctx, audit.Event{
		Action:       audit.ActionRevoked,
		CredentialID: credentialID,
		Reason:       reason,
	})
	return true, nil
}

// Refresh issues a replacement credential from new provider data, then
// revokes the original. The original stays valid if the new issuance fails.
func (s *Service) Refresh(ctx context.Context, credentialID string, newData []*provider.Response) (*models.CreationResult, error) {
	rec, err := s.store.FindByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if rec.State == models.StateRevoked {
		return nil, dErrors.New(dErrors.CodeConflict, "cannot refresh a revoked credential: "+credentialID)
	}

	result, err := s.Create(ctx, models.IssuanceRequest{
		TemplateID:   rec.TemplateID,
		SubjectDID:   rec.SubjectDID,
		IssuerDID:    rec.IssuerDID,
		ProviderData: newData,
	})
	if err != nil || !result.Success {
		return result, err
	}

	if _, err := s.Revoke(ctx, credentialID, "superseded by "+result.Credential.ID); err != nil {
		// Both credentials are live at this point; the caller has to know.
		s.log.Error("failed to revoke superseded credential",
			"credential_id", credentialID, "replacement_id", result.Credential.ID, "error", err)
		result.Warnings = append(result.Warnings,
			"superseded credential "+credentialID+" could not be revoked: "+err.Error())
	}

	s.audit.Emit(ctx, audit.Event{
		Action:       audit.ActionRefreshed,
		CredentialID: result.Credential.ID,
		TemplateID:   rec.TemplateID,
		SubjectDID:   rec.SubjectDID,
		IssuerDID:    rec.IssuerDID,
		Detail:       map[string]any{"replaces": credentialID},
	})
	return result, nil
}

// Get returns a stored credential record.
func (s *Service) Get(ctx context.Context, credentialID string) (*store.Record, error) {
	return s.store.FindByID(ctx, credentialID)
}

// ListBySubject returns credentials issued to a subject DID.
func (s *Service) ListBySubject(ctx context.Context, subjectDID string) ([]*store.Record, error) {
	return s.store.ListBySubject(ctx, subjectDID)
}

// ListByIssuer returns credentials issued by an issuer DID.
func (s *Service) ListByIssuer(ctx context.Context, issuerDID string) ([]*store.Record, error) {
	return s.store.ListByIssuer(ctx, issuerDID)
}

// FetchDataForVC pulls provider data for a data type ahead of issuance.
func (s *Service) FetchDataForVC(ctx context.Context, dataType string, params map[string]string) ([]*provider.Response, error) {
	return s.fetcher.FetchForVC(ctx, dataType, params)
}

// RegisterProvider adds or replaces a data provider.
func (s *Service) RegisterProvider(p provider.Provider) {
	s.providers.Register(p)
}

// RegisterTemplate adds or replaces a credential template.
func (s *Service) RegisterTemplate(t models.Template) error {
	return s.templates.Register(t)
}
