package calls

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tracker is the single source of truth for "who really started this
// call". Entries are process-local and expire unconditionally after the
// pending TTL to bound memory, whatever the call's outcome.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]CallInitiation

	ttl   time.Duration
	clock func() time.Time
	log   *slog.Logger
}

func NewTracker(ttl time.Duration, log *slog.Logger) *Tracker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		entries: make(map[string]CallInitiation),
		ttl:     ttl,
		clock:   time.Now,
		log:     log,
	}
}

// Record inserts the initiation. A still-live entry under the same call id
// is a protocol anomaly: logged, and the newer initiation proceeds anyway.
// An expired prior entry is replaced silently as a fresh attempt.
func (t *Tracker) Record(init CallInitiation) {
	now := t.clock().UTC()
	if init.CreatedAt.IsZero() {
		init.CreatedAt = now
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if prior, ok := t.entries[init.CallID]; ok && !t.expiredLocked(prior, now) {
		t.log.Warn("duplicate live call id",
			"call_id", init.CallID,
			"prior_caller", prior.CallerID,
			"new_caller", init.CallerID,
		)
	}
	t.entries[init.CallID] = init
}

// Resolve returns the live initiation for a call id. Expired entries are
// dropped on access.
func (t *Tracker) Resolve(callID string) (CallInitiation, bool) {
	now := t.clock().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	init, ok := t.entries[callID]
	if !ok {
		return CallInitiation{}, false
	}
	if t.expiredLocked(init, now) {
		delete(t.entries, callID)
		return CallInitiation{}, false
	}
	return init, true
}

// Delete removes an entry once a CallRecord supersedes it.
func (t *Tracker) Delete(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, callID)
}

// Sweep drops every expired entry and reports how many were removed.
func (t *Tracker) Sweep() int {
	now := t.clock().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, init := range t.entries {
		if t.expiredLocked(init, now) {
			delete(t.entries, id)
			removed++
		}
	}
	return removed
}

// Run sweeps periodically until the context is cancelled.
func (t *Tracker) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.Sweep(); n > 0 {
				t.log.Debug("expired call initiations swept", "count", n)
			}
		}
	}
}

func (t *Tracker) expiredLocked(init CallInitiation, now time.Time) bool {
	return now.Sub(init.CreatedAt) >= t.ttl
}
