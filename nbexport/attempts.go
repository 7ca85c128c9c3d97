package nbexport

import (
	"context"
	"sync"
)

// AttemptStatus is the outcome recorded for one backend attempt.
type AttemptStatus string

const (
	StatusTrying AttemptStatus = "trying"
	StatusOK     AttemptStatus = "ok"
	StatusFail   AttemptStatus = "fail"
)

// AttemptRecord is one entry in the attempt log: which backend ran, how it
// ended, and an optional diagnostic note derived from the failure.
type AttemptRecord struct {
	Backend string        `json:"backend"`
	Status  AttemptStatus `json:"status"`
	Note    string        `json:"note,omitempty"`
}

// AttemptStore keeps the ordered attempt log for diagnostic display. A store
// is injected per engine or per session; callers never probe for session
// availability.
type AttemptStore interface {
	Record(ctx context.Context, rec AttemptRecord) error
	Snapshot(ctx context.Context) ([]AttemptRecord, error)
	Clear(ctx context.Context) error
}

// MemoryAttemptLog is an in-memory append-only attempt store. One instance
// backs the process-global log; sessions get their own.
type MemoryAttemptLog struct {
	mu      sync.RWMutex
	records []AttemptRecord
}

var _ AttemptStore = (*MemoryAttemptLog)(nil)

// NewMemoryAttemptLog creates an empty in-memory attempt log.
func NewMemoryAttemptLog() *MemoryAttemptLog {
	return &MemoryAttemptLog{}
}

// Record appends one attempt entry.
func (l *MemoryAttemptLog) Record(ctx context.Context, rec AttemptRecord) error {
	_ = ctx
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

// Snapshot returns a defensive copy of the log in record order.
func (l *MemoryAttemptLog) Snapshot(ctx context.Context) ([]AttemptRecord, error) {
	_ = ctx
	l.mu.RLock()
	out := make([]AttemptRecord, len(l.records))
	copy(out, l.records)
	l.mu.RUnlock()
	return out, nil
}

// Clear drops every entry.
func (l *MemoryAttemptLog) Clear(ctx context.Context) error {
	_ = ctx
	l.mu.Lock()
	l.records = l.records[:0]
	l.mu.Unlock()
	return nil
}

// Len reports the current entry count.
func (l *MemoryAttemptLog) Len() int {
	l.mu.RLock()
	n := len(l.records)
	l.mu.RUnlock()
	return n
}

// NopAttempts discards every record. Useful when telemetry is handled
// elsewhere or intentionally off.
type NopAttempts struct{}

var _ AttemptStore = NopAttempts{}

func (NopAttempts) Record(context.Context, AttemptRecord) error { return nil }

func (NopAttempts) Snapshot(context.Context) ([]AttemptRecord, error) { return nil, nil }

func (NopAttempts) Clear(context.Context) error { return nil }
