package nbexportjob

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-nbexport/nbexport"
)

// CancelRegistry tracks running render jobs so operators can stop one
// mid-flight. Cancellation carries a render-specific cause, so a stopped job
// reports why it ended instead of a bare context error.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
}

// NewCancelRegistry creates a new registry for job cancellation.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelCauseFunc)}
}

// Register associates a cancel func with a render ID. The returned release
// func unregisters the render once it finishes.
func (r *CancelRegistry) Register(renderID string, cancel context.CancelCauseFunc) func() {
	if r == nil || renderID == "" || cancel == nil {
		return func() {}
	}
	r.mu.Lock()
	r.cancels[renderID] = cancel
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.cancels, renderID)
		r.mu.Unlock()
	}
}

// Cancel stops a running render with the default operator cause.
func (r *CancelRegistry) Cancel(ctx context.Context, renderID string) error {
	return r.CancelWithReason(ctx, renderID, "canceled by operator")
}

// CancelWithReason stops a running render, recording reason as the
// cancellation cause the job reports.
func (r *CancelRegistry) CancelWithReason(ctx context.Context, renderID, reason string) error {
	_ = ctx
	if r == nil {
		return nbexport.NewError(nbexport.KindInternal, "cancel registry is nil", nil)
	}
	if renderID == "" {
		return nbexport.NewError(nbexport.KindValidation, "render ID is required", nil)
	}

	r.mu.Lock()
	cancel, ok := r.cancels[renderID]
	r.mu.Unlock()
	if !ok {
		return nbexport.NewError(nbexport.KindNotFound, "render not running", nil)
	}
	if reason == "" {
		reason = "canceled"
	}
	cancel(nbexport.NewError(nbexport.KindCanceled, fmt.Sprintf("render %s %s", renderID, reason), nil))
	return nil
}
