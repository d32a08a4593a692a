package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func record(id, subject, issuer string) *Record {
	return &Record{
		ID:         id,
		Credential: &models.VerifiableCredential{ID: id},
		TemplateID: "kyc-basic",
		SubjectDID: subject,
		IssuerDID:  issuer,
		State:      models.StateIssued,
		IssuedAt:   time.Now().UTC(),
	}
}

func (s *MemoryStoreSuite) TestSaveAndFind() {
	rec := record("urn:uuid:1", "did:example:alice", "did:example:issuer")
	s.Require().NoError(s.store.Save(s.ctx, rec))

	got, err := s.store.FindByID(s.ctx, "urn:uuid:1")
	s.Require().NoError(err)
	s.Equal(models.StateIssued, got.State)
	s.Equal("did:example:alice", got.SubjectDID)
}

func (s *MemoryStoreSuite) TestFindMissing() {
	_, err := s.store.FindByID(s.ctx, "urn:uuid:none")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MemoryStoreSuite) TestSubjectAndIssuerIndexes() {
	s.Require().NoError(s.store.Save(s.ctx, record("urn:uuid:1", "did:example:alice", "did:example:issuer")))
	s.Require().NoError(s.store.Save(s.ctx, record("urn:uuid:2", "did:example:alice", "did:example:other")))
	s.Require().NoError(s.store.Save(s.ctx, record("urn:uuid:3", "did:example:bob", "did:example:issuer")))

	bySubject, err := s.store.ListBySubject(s.ctx, "did:example:alice")
	s.Require().NoError(err)
	s.Len(bySubject, 2)

	byIssuer, err := s.store.ListByIssuer(s.ctx, "did:example:issuer")
	s.Require().NoError(err)
	s.Len(byIssuer, 2)

	empty, err := s.store.ListBySubject(s.ctx, "did:example:nobody")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *MemoryStoreSuite) TestSaveSameIDDoesNotDuplicateIndex() {
	rec := record("urn:uuid:1", "did:example:alice", "did:example:issuer")
	s.Require().NoError(s.store.Save(s.ctx, rec))
	rec.State = models.StateRevoked
	s.Require().NoError(s.store.Save(s.ctx, rec))

	bySubject, err := s.store.ListBySubject(s.ctx, "did:example:alice")
	s.Require().NoError(err)
	s.Require().Len(bySubject, 1)
	s.Equal(models.StateRevoked, bySubject[0].State)
}

func (s *MemoryStoreSuite) TestMarkRevoked() {
	s.Require().NoError(s.store.Save(s.ctx, record("urn:uuid:1", "did:example:alice", "did:example:issuer")))

	revokedAt := time.Now().UTC()
	s.Require().NoError(s.store.MarkRevoked(s.ctx, "urn:uuid:1", "credential superseded", revokedAt))

	got, err := s.store.FindByID(s.ctx, "urn:uuid:1")
	s.Require().NoError(err)
	s.Equal(models.StateRevoked, got.State)
	s.Equal("credential superseded", got.RevocationReason)
	s.Require().NotNil(got.RevokedAt)
	s.Equal(revokedAt, *got.RevokedAt)
}

func (s *MemoryStoreSuite) TestDoubleRevokeConflicts() {
	s.Require().NoError(s.store.Save(s.ctx, record("urn:uuid:1", "did:example:alice", "did:example:issuer")))
	s.Require().NoError(s.store.MarkRevoked(s.ctx, "urn:uuid:1", "first", time.Now()))

	err := s.store.MarkRevoked(s.ctx, "urn:uuid:1", "second", time.Now())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *MemoryStoreSuite) TestRemoveCleansIndexes() {
	s.Require().NoError(s.store.Save(s.ctx, record("urn:uuid:1", "did:example:alice", "did:example:issuer")))
	s.Require().NoError(s.store.Remove(s.ctx, "urn:uuid:1"))

	s.Zero(s.store.Len())
	bySubject, err := s.store.ListBySubject(s.ctx, "did:example:alice")
	s.Require().NoError(err)
	s.Empty(bySubject)

	err = s.store.Remove(s.ctx, "urn:uuid:1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MemoryStoreSuite) TestFindReturnsSnapshot() {
	s.Require().NoError(s.store.Save(s.ctx, record("urn:uuid:1", "did:example:alice", "did:example:issuer")))

	got, err := s.store.FindByID(s.ctx, "urn:uuid:1")
	s.Require().NoError(err)
	got.State = models.StateFailed

	again, err := s.store.FindByID(s.ctx, "urn:uuid:1")
	s.Require().NoError(err)
	s.Equal(models.StateIssued, again.State)
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}
