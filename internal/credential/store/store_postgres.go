package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"attestia/internal/credential/models"
	dErrors "attestia/pkg/domain-errors"
)

// PostgresStore persists credentials in PostgreSQL. The credential document
// is stored as JSONB; subject and issuer DIDs are extracted into indexed
// columns for the secondary lookups.
//
// Expected schema:
//
//	CREATE TABLE credentials (
//	    id                TEXT PRIMARY KEY,
//	    document          JSONB NOT NULL,
//	    template_id       TEXT NOT NULL,
//	    subject_did       TEXT NOT NULL,
//	    issuer_did        TEXT NOT NULL,
//	    state             TEXT NOT NULL,
//	    revocation_reason TEXT NOT NULL DEFAULT '',
//	    issued_at         TIMESTAMPTZ NOT NULL,
//	    revoked_at        TIMESTAMPTZ
//	);
//	CREATE INDEX credentials_subject_idx ON credentials (subject_did);
//	CREATE INDEX credentials_issuer_idx ON credentials (issuer_did);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "credential record requires an id")
	}
	document, err := json.Marshal(rec.Credential)
	if err != nil {
		return fmt.Errorf("marshal credential document: %w", err)
	}
	query := `
		INSERT INTO credentials (id, document, template_id, subject_did, issuer_did, state, revocation_reason, issued_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			document = EXCLUDED.document,
			state = EXCLUDED.state,
			revocation_reason = EXCLUDED.revocation_reason,
			revoked_at = EXCLUDED.revoked_at
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		document,
		rec.TemplateID,
		rec.SubjectDID,
		rec.IssuerDID,
		string(rec.State),
		rec.RevocationReason,
		rec.IssuedAt,
		rec.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

const selectColumns = `id, document, template_id, subject_did, issuer_did, state, revocation_reason, issued_at, revoked_at`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, dErrors.New(dErrors.CodeNotFound, "credential not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subjectDID string) ([]*Record, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE subject_did = $1 ORDER BY issued_at`, subjectDID)
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuerDID string) ([]*Record, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM credentials WHERE issuer_did = $1 ORDER BY issued_at`, issuerDID)
}

func (s *PostgresStore) list(ctx context.Context, query, arg string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) MarkRevoked(ctx context.Context, id, reason string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET state = $1, revocation_reason = $2, revoked_at = $3
		WHERE id = $4 AND state != $1
	`, string(models.StateRevoked), reason, at, id)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from already revoked.
		if _, findErr := s.FindByID(ctx, id); findErr != nil {
			return findErr
		}
		return dErrors.New(dErrors.CodeConflict, "credential already revoked: "+id)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "credential not found: "+id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec      Record
		document []byte
		state    string
	)
	if err := row.Scan(
		&rec.ID,
		&document,
		&rec.TemplateID,
		&rec.SubjectDID,
		&rec.IssuerDID,
		&state,
		&rec.RevocationReason,
		&rec.IssuedAt,
		&rec.RevokedAt,
	); err != nil {
		return nil, err
	}
	rec.State = models.LifecycleState(state)
	if len(document) > 0 {
		var vc models.VerifiableCredential
		if err := json.Unmarshal(document, &vc); err != nil {
			return nil, fmt.Errorf("unmarshal credential document: %w", err)
		}
		rec.Credential = &vc
	}
	return &rec, nil
}
