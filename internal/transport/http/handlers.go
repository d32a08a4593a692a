package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attestia/internal/batch"
	"attestia/internal/credential/models"
	"attestia/internal/credential/store"
	"attestia/internal/provider"
	"attestia/internal/transport/httputil"
	dErrors "attestia/pkg/domain-errors"
)

// IssuanceService is the pipeline surface the transport layer consumes.
type IssuanceService interface {
	Create(ctx context.Context, req models.IssuanceRequest) (*models.CreationResult, error)
	CreateBatch(ctx context.Context, req models.BatchRequest, onProgress batch.ProgressFunc) ([]*models.CreationResult, error)
	Revoke(ctx context.Context, credentialID, reason string) (bool, error)
	Refresh(ctx context.Context, credentialID string, newData []*provider.Response) (*models.CreationResult, error)
	Get(ctx context.Context, credentialID string) (*store.Record, error)
	ListBySubject(ctx context.Context, subjectDID string) ([]*store.Record, error)
	ListByIssuer(ctx context.Context, issuerDID string) ([]*store.Record, error)
	FetchDataForVC(ctx context.Context, dataType string, params map[string]string) ([]*provider.Response, error)
	RegisterProvider(p provider.Provider)
	RegisterTemplate(t models.Template) error
}

// Handler exposes the issuance pipeline over HTTP.
type Handler struct {
	service IssuanceService
	logger  *slog.Logger
}

func NewHandler(service IssuanceService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type issuanceRequest struct {
	TemplateID  string                `json:"templateId"`
	SubjectDID  string                `json:"subjectDid"`
	IssuerDID   string                `json:"issuerDid"`
	DataTypes   []string              `json:"dataTypes,omitempty"`
	Params      map[string]string     `json:"params,omitempty"`
	ExtraClaims map[string]any        `json:"extraClaims,omitempty"`
	Proof       models.ProofOptions   `json:"proof,omitempty"`
	Mode        models.IssuanceMode   `json:"mode,omitempty"`
	Privacy     models.PrivacyOptions `json:"privacy,omitempty"`
}

type creationResponse struct {
	Success    bool                         `json:"success"`
	Credential *models.VerifiableCredential `json:"credential,omitempty"`
	State      models.LifecycleState        `json:"state"`
	Quality    float64                      `json:"quality"`
	Compliance models.ComplianceLevel       `json:"compliance,omitempty"`
	Warnings   []string                     `json:"warnings,omitempty"`
	Errors     []string                     `json:"errors,omitempty"`
	DurationMS int64                        `json:"durationMs"`
}

func toCreationResponse(result *models.CreationResult) creationResponse {
	if result == nil {
		return creationResponse{State: models.StateFailed}
	}
	return creationResponse{
		Success:    result.Success,
		Credential: result.Credential,
		State:      result.State,
		Quality:    result.Quality,
		Compliance: result.Compliance,
		Warnings:   result.Warnings,
		Errors:     result.Errors,
		DurationMS: result.Duration.Milliseconds(),
	}
}

// toIssuanceRequest fetches provider data for each requested data type and
// assembles the pipeline request.
func (h *Handler) toIssuanceRequest(ctx context.Context, in issuanceRequest) (models.IssuanceRequest, error) {
	var responses []*provider.Response
	for _, dataType := range in.DataTypes {
		fetched, err := h.service.FetchDataForVC(ctx, dataType, in.Params)
		if err != nil {
			return models.IssuanceRequest{}, err
		}
		responses = append(responses, fetched...)
	}
	return models.IssuanceRequest{
		TemplateID:   in.TemplateID,
		SubjectDID:   in.SubjectDID,
		IssuerDID:    in.IssuerDID,
		ProviderData: responses,
		ExtraClaims:  in.ExtraClaims,
		Proof:        in.Proof,
		Mode:         in.Mode,
		Privacy:      in.Privacy,
	}, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in issuanceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	req, err := h.toIssuanceRequest(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.Create(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSON(w, status, toCreationResponse(result))
}

type batchRequest struct {
	Requests       []issuanceRequest  `json:"requests"`
	MaxConcurrency int                `json:"maxConcurrency,omitempty"`
	FailureMode    models.FailureMode `json:"failureMode,omitempty"`
}

type batchResponse struct {
	Results []creationResponse `json:"results"`
	Error   string             `json:"error,omitempty"`
}

func (h *Handler) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var in batchRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if len(in.Requests) == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "batch requires at least one request"))
		return
	}
	mode := in.FailureMode
	if mode == "" {
		mode = models.FailContinue
	}

	requests := make([]models.IssuanceRequest, 0, len(in.Requests))
	for _, item := range in.Requests {
		req, err := h.toIssuanceRequest(r.Context(), item)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		requests = append(requests, req)
	}

	results, batchErr := h.service.CreateBatch(r.Context(), models.BatchRequest{
		Requests:       requests,
		MaxConcurrency: in.MaxConcurrency,
		FailureMode:    mode,
	}, nil)

	out := batchResponse{Results: make([]creationResponse, len(results))}
	for i, result := range results {
		out.Results[i] = toCreationResponse(result)
	}
	status := http.StatusOK
	if batchErr != nil {
		out.Error = batchErr.Error()
		status = http.StatusMultiStatus
	}
	httputil.WriteJSON(w, status, out)
}

type recordResponse struct {
	ID               string                       `json:"id"`
	Credential       *models.VerifiableCredential `json:"credential"`
	TemplateID       string                       `json:"templateId"`
	SubjectDID       string                       `json:"subjectDid"`
	IssuerDID        string                       `json:"issuerDid"`
	State            models.LifecycleState        `json:"state"`
	RevocationReason string                       `json:"revocationReason,omitempty"`
	IssuedAt         time.Time                    `json:"issuedAt"`
	RevokedAt        *time.Time                   `json:"revokedAt,omitempty"`
}

func toRecordResponse(rec *store.Record) recordResponse {
	return recordResponse{
		ID:               rec.ID,
		Credential:       rec.Credential,
		TemplateID:       rec.TemplateID,
		SubjectDID:       rec.SubjectDID,
		IssuerDID:        rec.IssuerDID,
		State:            rec.State,
		RevocationReason: rec.RevocationReason,
		IssuedAt:         rec.IssuedAt,
		RevokedAt:        rec.RevokedAt,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	issuer := r.URL.Query().Get("issuer")

	var (
		records []*store.Record
		err     error
	)
	switch {
	case subject != "":
		records, err = h.service.ListBySubject(r.Context(), subject)
	case issuer != "":
		records, err = h.service.ListByIssuer(r.Context(), issuer)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject or issuer query parameter is required"))
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := make([]recordResponse, len(records))
	for i, rec := range records {
		out[i] = toRecordResponse(rec)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var in revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	revoked, err := h.service.Revoke(r.Context(), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

type refreshRequest struct {
	DataTypes []string          `json:"dataTypes"`
	Params    map[string]string `json:"params,omitempty"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var responses []*provider.Response
	for _, dataType := range in.DataTypes {
		fetched, err := h.service.FetchDataForVC(r.Context(), dataType, in.Params)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		responses = append(responses, fetched...)
	}

	result, err := h.service.Refresh(r.Context(), chi.URLParam(r, "id"), responses)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSON(w, status, toCreationResponse(result))
}

func (h *Handler) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	var p provider.Provider
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if p.ID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "provider id is required"))
		return
	}
	h.service.RegisterProvider(p)
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"id": p.ID})
}

func (h *Handler) handleRegisterTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.Template
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := h.service.RegisterTemplate(t); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"id": t.ID})
}

type fetchDataRequest struct {
	DataType string            `json:"dataType"`
	Params   map[string]string `json:"params,omitempty"`
}

func (h *Handler) handleFetchData(w http.ResponseWriter, r *http.Request) {
	var in fetchDataRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if in.DataType == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "dataType is required"))
		return
	}
	responses, err := h.service.FetchDataForVC(r.Context(), in.DataType, in.Params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"responses": responses})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
