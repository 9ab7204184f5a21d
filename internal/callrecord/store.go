package callrecord

import (
	"context"
	"database/sql"
	"errors"

	"voiceagent-platform/pkg/storage"
)

// Store is the persistence contract for finished calls.
//
// It is insert-only. No Update/Delete methods are provided by design.
type Store interface {
	SaveCallRecord(ctx context.Context, rec CallRecord) error
}

// NOTE: PostgresStore assumes the following tables exist:
// - call_records (one row per finished call)
// - call_transcripts (one row per turn, ordered by turn_index)
//
// Recommended constraint: PRIMARY KEY (session_id) on call_records and
// PRIMARY KEY (session_id, turn_index) on call_transcripts.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("callrecord: db required")
	}
	return &PostgresStore{db: db}, nil
}

// SaveCallRecord writes the record and its transcript in one transaction,
// so a half-written call never becomes visible.
func (s *PostgresStore) SaveCallRecord(ctx context.Context, rec CallRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	return storage.WithTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		const insertRecord = `
INSERT INTO call_records (session_id, provider_call_id, phone_number, purpose, customer_name, final_status, started_at, ended_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
		if _, err := tx.ExecContext(ctx, insertRecord,
			rec.SessionID,
			rec.ProviderCallID,
			rec.PhoneNumber,
			rec.Purpose,
			rec.CustomerName,
			rec.FinalStatus,
			rec.StartedAt,
			rec.EndedAt,
			rec.DurationMs,
		); err != nil {
			return err
		}

		const insertTurn = `
INSERT INTO call_transcripts (session_id, turn_index, role, content, confidence, spoken_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
		for i, turn := range rec.Turns {
			if _, err := tx.ExecContext(ctx, insertTurn,
				rec.SessionID,
				i,
				turn.Role,
				turn.Content,
				turn.Confidence,
				turn.SpokenAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
