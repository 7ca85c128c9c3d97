package query

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-nbexport/nbexport"
)

// RenderAttemptsHandler returns the recorded attempt log.
type RenderAttemptsHandler struct {
	Service nbexport.Service
}

func NewRenderAttemptsHandler(svc nbexport.Service) *RenderAttemptsHandler {
	return &RenderAttemptsHandler{Service: svc}
}

func (h *RenderAttemptsHandler) Query(ctx context.Context, msg RenderAttempts) ([]nbexport.AttemptRecord, error) {
	if h == nil || h.Service == nil {
		return nil, errors.New("render service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	svc := h.Service
	if msg.Session != "" {
		svc = svc.Session(msg.Session)
	}
	return svc.Attempts(ctx)
}

// RenderBackendsHandler returns the registered backend set.
type RenderBackendsHandler struct {
	Service nbexport.Service
}

func NewRenderBackendsHandler(svc nbexport.Service) *RenderBackendsHandler {
	return &RenderBackendsHandler{Service: svc}
}

func (h *RenderBackendsHandler) Query(ctx context.Context, msg RenderBackends) ([]nbexport.BackendInfo, error) {
	if h == nil || h.Service == nil {
		return nil, errors.New("render service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	_ = ctx
	_ = msg
	return h.Service.Backends(), nil
}
