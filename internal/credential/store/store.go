// Package store persists issued credentials and their lifecycle state.
package store

import (
	"context"
	"time"

	"attestia/internal/credential/models"
)

// Record is the durable envelope around an issued credential.
type Record struct {
	ID               string
	Credential       *models.VerifiableCredential
	TemplateID       string
	SubjectDID       string
	IssuerDID        string
	State            models.LifecycleState
	RevocationReason string
	IssuedAt         time.Time
	RevokedAt        *time.Time
}

// Store is the durable storage collaborator. Implementations must be safe
// for concurrent use.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	FindByID(ctx context.Context, id string) (*Record, error)
	// ListBySubject returns all credentials issued to a subject DID.
	ListBySubject(ctx context.Context, subjectDID string) ([]*Record, error)
	// ListByIssuer returns all credentials issued by an issuer DID.
	ListByIssuer(ctx context.Context, issuerDID string) ([]*Record, error)
	// MarkRevoked flips the record to revoked with a reason. Revoking an
	// already revoked credential is an error.
	MarkRevoked(ctx context.Context, id, reason string, at time.Time) error
	Remove(ctx context.Context, id string) error
}
