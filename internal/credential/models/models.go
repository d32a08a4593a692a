// Package models defines the credential issuance data model: verifiable
// credentials, templates, and issuance requests/results.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"attestia/internal/provider"
	dErrors "attestia/pkg/domain-errors"
)

// DefaultContext is the base JSON-LD context list for issued credentials.
var DefaultContext = []string{"https://www.w3.org/2018/credentials/v1"}

// NewCredentialURN generates a unique credential id in URN form.
func NewCredentialURN() string {
	return "urn:uuid:" + uuid.NewString()
}

// Issuer describes the credential issuer.
type Issuer struct {
	ID   string `json:"id"` // Issuer DID
	Name string `json:"name,omitempty"`
}

// Schema references the credential's validation schema.
type Schema struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Status carries the revocation/status entry of a credential.
type Status struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// Evidence records one provider source that substantiated the claims.
type Evidence struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	SourceID    string    `json:"sourceId"`
	Timestamp   time.Time `json:"timestamp"`
	Reliability float64   `json:"reliability"`
}

// RefreshService points at the endpoint able to re-issue this credential.
type RefreshService struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Proof is the cryptographic proof object returned by the signing
// collaborator and embedded in the credential.
type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	ProofPurpose       string    `json:"proofPurpose"`
	ProofValue         string    `json:"proofValue"`
}

// VerifiableCredential is the issued credential structure. It is created
// once per successful issuance and never mutated afterwards; a refresh
// issues a new credential and revokes the old one.
type VerifiableCredential struct {
	Context        []string        `json:"@context"`
	ID             string          `json:"id"`
	Type           []string        `json:"type"`
	Issuer         Issuer          `json:"issuer"`
	Subject        map[string]any  `json:"credentialSubject"`
	Schema         *Schema         `json:"credentialSchema,omitempty"`
	Status         *Status         `json:"credentialStatus,omitempty"`
	Evidence       []Evidence      `json:"evidence,omitempty"`
	RefreshService *RefreshService `json:"refreshService,omitempty"`
	IssuanceDate   time.Time       `json:"issuanceDate"`
	ExpirationDate *time.Time      `json:"expirationDate,omitempty"`
	Proof          []Proof         `json:"proof,omitempty"`
}

// Clone returns a deep enough copy for the pipeline's needs: the subject
// claim map and proof slice are copied so a signing failure can never leave a
// partially mutated credential behind.
func (vc *VerifiableCredential) Clone() *VerifiableCredential {
	cp := *vc
	cp.Context = append([]string(nil), vc.Context...)
	cp.Type = append([]string(nil), vc.Type...)
	cp.Evidence = append([]Evidence(nil), vc.Evidence...)
	cp.Proof = append([]Proof(nil), vc.Proof...)
	if vc.Subject != nil {
		cp.Subject = make(map[string]any, len(vc.Subject))
		for k, v := range vc.Subject {
			cp.Subject[k] = v
		}
	}
	if vc.ExpirationDate != nil {
		t := *vc.ExpirationDate
		cp.ExpirationDate = &t
	}
	return &cp
}

// LifecycleState tracks a credential through the issuance pipeline.
type LifecycleState string

const (
	StatePending LifecycleState = "pending"
	StateIssued  LifecycleState = "issued"
	StateFailed  LifecycleState = "failed"
	StateRevoked LifecycleState = "revoked"
)

// ComplianceLevel grades an issuance by its quality score.
type ComplianceLevel string

const (
	ComplianceFull        ComplianceLevel = "full"
	ComplianceConditional ComplianceLevel = "conditional"
	ComplianceNone        ComplianceLevel = "none"
)

// IssuanceMode selects immediate or queued issuance.
type IssuanceMode string

const (
	IssueImmediate IssuanceMode = "immediate"
	IssueQueued    IssuanceMode = "queued"
)

// ProofOptions forwards caller preferences to the signing collaborator.
type ProofOptions struct {
	ProofPurpose       string `json:"proofPurpose,omitempty"`
	VerificationMethod string `json:"verificationMethod,omitempty"`
}

// PrivacyOptions controls claim minimization on issue.
type PrivacyOptions struct {
	MinimizeClaims bool     `json:"minimizeClaims,omitempty"`
	OmitClaims     []string `json:"omitClaims,omitempty"`
}

// IssuanceRequest names everything needed to issue one credential.
type IssuanceRequest struct {
	TemplateID   string
	SubjectDID   string
	IssuerDID    string
	ProviderData []*provider.Response
	ExtraClaims  map[string]any
	Proof        ProofOptions
	Mode         IssuanceMode
	Privacy      PrivacyOptions
}

// Validate checks request shape before the pipeline runs.
func (r IssuanceRequest) Validate() error {
	if strings.TrimSpace(r.TemplateID) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "template_id is required")
	}
	if strings.TrimSpace(r.SubjectDID) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subject_did is required")
	}
	if strings.TrimSpace(r.IssuerDID) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "issuer_did is required")
	}
	switch r.Mode {
	case "", IssueImmediate, IssueQueued:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "unknown issuance mode: "+string(r.Mode))
	}
	return nil
}

// EffectiveMode resolves the request's issuance mode, defaulting to immediate.
func (r IssuanceRequest) EffectiveMode() IssuanceMode {
	if r.Mode == "" {
		return IssueImmediate
	}
	return r.Mode
}

// CreationResult is the immutable snapshot returned to callers for one
// issuance attempt. A failed result always carries at least one error.
type CreationResult struct {
	Success    bool
	Credential *VerifiableCredential
	State      LifecycleState
	Quality    float64
	Compliance ComplianceLevel
	Warnings   []string
	Errors     []string
	StartedAt  time.Time
	Duration   time.Duration
}

// FailureMode selects batch failure handling.
type FailureMode string

const (
	FailStop     FailureMode = "stop"     // Abort scheduling after first failure
	FailContinue FailureMode = "continue" // Run everything, collect all results
	FailRollback FailureMode = "rollback" // Revoke all successes if any member fails
)

// BatchRequest runs many issuance requests under bounded concurrency.
type BatchRequest struct {
	Requests       []IssuanceRequest
	MaxConcurrency int
	FailureMode    FailureMode
}

// Progress is the monotonically-updated batch counter snapshot handed to the
// progress callback after each completion.
type Progress struct {
	Total                  int
	Completed              int
	Failed                 int
	InProgress             int
	EstimatedTimeRemaining time.Duration
}

// ComplianceFor maps a quality score to a compliance level.
func ComplianceFor(quality float64) ComplianceLevel {
	switch {
	case quality >= 0.9:
		return ComplianceFull
	case quality >= 0.5:
		return ComplianceConditional
	default:
		return ComplianceNone
	}
}
