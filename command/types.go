package command

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-nbexport/nbexport"
)

// RenderDocument renders a notebook to PDF through the fallback chain.
type RenderDocument struct {
	Request nbexport.ExportRequest
	Result  *nbexport.ExportResult
}

func (RenderDocument) Type() string { return "render:document" }

func (msg RenderDocument) Validate() error {
	if msg.Request.Path == "" {
		return errors.New("notebook path is required", errors.CategoryValidation).
			WithTextCode("PATH_REQUIRED")
	}
	return nil
}

// RenderMarkup renders a notebook to themed HTML.
type RenderMarkup struct {
	Path   string
	Theme  string
	Result *nbexport.MarkupResult
}

func (RenderMarkup) Type() string { return "render:markup" }

func (msg RenderMarkup) Validate() error {
	if msg.Path == "" {
		return errors.New("notebook path is required", errors.CategoryValidation).
			WithTextCode("PATH_REQUIRED")
	}
	return nil
}

// ClearRenderCache drops memoized renders, everything when Keys is empty.
type ClearRenderCache struct {
	Keys []nbexport.CacheKey
}

func (ClearRenderCache) Type() string { return "render:cache:clear" }

func (ClearRenderCache) Validate() error { return nil }

// ClearAttemptLog drops recorded backend attempts.
type ClearAttemptLog struct{}

func (ClearAttemptLog) Type() string { return "render:attempts:clear" }

func (ClearAttemptLog) Validate() error { return nil }
