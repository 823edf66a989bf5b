package calls

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory call record repository useful for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]CallRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]CallRecord)}
}

func (r *MemoryRepo) FindByCallID(ctx context.Context, callID string) (CallRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[callID]
	return rec, ok, nil
}

func (r *MemoryRepo) CloseOut(ctx context.Context, rec CallRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[rec.CallID]; ok {
		existing.Status = rec.Status
		existing.DurationSeconds = rec.DurationSeconds
		existing.EndTime = rec.EndTime
		r.records[rec.CallID] = existing
		return false, nil
	}
	r.records[rec.CallID] = rec
	return true, nil
}

func (r *MemoryRepo) Records() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}
