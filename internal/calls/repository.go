package calls

import "context"

// Repository persists call outcomes. CloseOut must be idempotent per call
// id: the first terminal event creates the record, later ones only mutate
// the close-out fields. The storage layer owns the uniqueness guarantee so
// two racing terminal events cannot both create.
type Repository interface {
	FindByCallID(ctx context.Context, callID string) (CallRecord, bool, error)

	// CloseOut upserts the record and reports whether this call wrote the
	// record first.
	CloseOut(ctx context.Context, rec CallRecord) (created bool, err error)
}
