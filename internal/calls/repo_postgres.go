package calls

import (
	"context"
	"database/sql"
	"errors"
)

// NOTE: This repository assumes the following table exists:
// - call_records (call_id PRIMARY KEY, conversation_id, caller_id,
//   caller_role, receiver_id, receiver_role, duration, status, start_time,
//   end_time)
//
// The primary key on call_id is what makes CloseOut safe under concurrent
// terminal events; the application never does a check-then-act.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) FindByCallID(ctx context.Context, callID string) (CallRecord, bool, error) {
	const q = `
SELECT conversation_id, call_id, caller_id, caller_role, receiver_id, receiver_role,
       duration, status, start_time, end_time
FROM call_records
WHERE call_id = $1
`
	var rec CallRecord
	err := r.db.QueryRowContext(ctx, q, callID).Scan(
		&rec.ConversationID,
		&rec.CallID,
		&rec.CallerID,
		&rec.CallerRole,
		&rec.ReceiverID,
		&rec.ReceiverRole,
		&rec.DurationSeconds,
		&rec.Status,
		&rec.StartTime,
		&rec.EndTime,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, false, nil
		}
		return CallRecord{}, false, err
	}
	return rec, true, nil
}

func (r *PostgresRepo) CloseOut(ctx context.Context, rec CallRecord) (bool, error) {
	// xmax = 0 distinguishes a fresh insert from a conflict update, which
	// is how "first close wins" is decided without a read.
	const q = `
INSERT INTO call_records (
  call_id, conversation_id, caller_id, caller_role, receiver_id, receiver_role,
  duration, status, start_time, end_time
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (call_id)
DO UPDATE SET status = EXCLUDED.status,
              duration = EXCLUDED.duration,
              end_time = EXCLUDED.end_time
RETURNING (xmax = 0)
`
	var created bool
	if err := r.db.QueryRowContext(ctx, q,
		rec.CallID,
		rec.ConversationID,
		rec.CallerID,
		rec.CallerRole,
		rec.ReceiverID,
		rec.ReceiverRole,
		rec.DurationSeconds,
		rec.Status,
		rec.StartTime,
		rec.EndTime,
	).Scan(&created); err != nil {
		return false, err
	}
	return created, nil
}
