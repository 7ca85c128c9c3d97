package command

import (
	"context"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-nbexport/nbexport"
)

// RenderDocumentHandler runs document renders.
type RenderDocumentHandler struct {
	Service nbexport.Service
}

func NewRenderDocumentHandler(svc nbexport.Service) *RenderDocumentHandler {
	return &RenderDocumentHandler{Service: svc}
}

func (h *RenderDocumentHandler) Execute(ctx context.Context, msg RenderDocument) error {
	if h == nil || h.Service == nil {
		return errors.New("render service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	result, err := h.Service.RenderDocument(ctx, msg.Request)
	if err != nil {
		return err
	}
	if msg.Result != nil {
		*msg.Result = result
	}
	if res := gcmd.ResultFromContext[nbexport.ExportResult](ctx); res != nil {
		res.Store(result)
	}
	return nil
}

// RenderMarkupHandler runs markup renders.
type RenderMarkupHandler struct {
	Service nbexport.Service
}

func NewRenderMarkupHandler(svc nbexport.Service) *RenderMarkupHandler {
	return &RenderMarkupHandler{Service: svc}
}

func (h *RenderMarkupHandler) Execute(ctx context.Context, msg RenderMarkup) error {
	if h == nil || h.Service == nil {
		return errors.New("render service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	markup, err := h.Service.RenderMarkup(ctx, msg.Path, msg.Theme)
	if err != nil {
		return err
	}
	if msg.Result != nil {
		*msg.Result = markup
	}
	if res := gcmd.ResultFromContext[nbexport.MarkupResult](ctx); res != nil {
		res.Store(markup)
	}
	return nil
}

// ClearRenderCacheHandler drops memoized renders.
type ClearRenderCacheHandler struct {
	Service nbexport.Service
	Config  gcmd.HandlerConfig
}

func NewClearRenderCacheHandler(svc nbexport.Service) *ClearRenderCacheHandler {
	return &ClearRenderCacheHandler{Service: svc}
}

func (h *ClearRenderCacheHandler) Execute(ctx context.Context, msg ClearRenderCache) error {
	if h == nil || h.Service == nil {
		return errors.New("render service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	return h.Service.ClearCache(ctx, msg.Keys...)
}

func (h *ClearRenderCacheHandler) CronHandler() func() error {
	return func() error {
		return h.Execute(context.Background(), ClearRenderCache{})
	}
}

func (h *ClearRenderCacheHandler) CronOptions() gcmd.HandlerConfig {
	return h.Config
}

// ClearAttemptLogHandler drops recorded backend attempts.
type ClearAttemptLogHandler struct {
	Service nbexport.Service
}

func NewClearAttemptLogHandler(svc nbexport.Service) *ClearAttemptLogHandler {
	return &ClearAttemptLogHandler{Service: svc}
}

func (h *ClearAttemptLogHandler) Execute(ctx context.Context, msg ClearAttemptLog) error {
	if h == nil || h.Service == nil {
		return errors.New("render service is required", errors.CategoryInternal).
			WithTextCode("SERVICE_REQUIRED")
	}
	_ = msg
	return h.Service.ClearAttempts(ctx)
}
