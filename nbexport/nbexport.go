// Package nbexport renders notebook documents to themed HTML and to portable
// document formats through a chain of interchangeable backends. Document
// rendering walks the backend chain in a fixed priority order, skipping
// backends excluded by the active capability mask and falling through on any
// failure; the first backend that produces output wins. Every attempt is
// recorded so operators can see which backends were tried and why they
// failed.
package nbexport

import (
	"context"
	"sync"
)

var (
	defaultMu     sync.RWMutex
	defaultEngine = NewEngine()
)

// Default returns the process-wide engine. Callers that need isolated
// telemetry should derive a session with Engine.Session instead.
func Default() *Engine {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultEngine
}

// SetDefault replaces the process-wide engine. A nil engine is ignored.
func SetDefault(e *Engine) {
	if e == nil {
		return
	}
	defaultMu.Lock()
	defaultEngine = e
	defaultMu.Unlock()
}

// RenderToMarkup renders the notebook at path to themed HTML using the
// default engine. Markup rendering has no fallback chain: any error (missing
// file, malformed notebook) is returned as-is.
func RenderToMarkup(ctx context.Context, path, fingerprint, theme string) (string, error) {
	return Default().RenderMarkup(ctx, Document{Path: path, Fingerprint: fingerprint}, theme)
}

// RenderToDocument renders the notebook at path to a portable document using
// the default engine and the given capability mask. It returns the document
// bytes and the theme the winning backend applied, empty when the backend
// does not theme its output. When every enabled backend fails the error
// satisfies IsNotAvailable.
func RenderToDocument(ctx context.Context, path, fingerprint string, mask Capability) ([]byte, string, error) {
	e := Default()
	result, err := e.RenderDocument(ctx, Document{Path: path, Fingerprint: fingerprint}, e.DefaultTheme, mask)
	if err != nil {
		return nil, "", err
	}
	return result.Body, result.AppliedTheme, nil
}

// ListAttempts returns the default engine's attempt log in record order.
func ListAttempts(ctx context.Context) ([]AttemptRecord, error) {
	return Default().ListAttempts(ctx)
}

// ClearAttempts drops the default engine's attempt log.
func ClearAttempts(ctx context.Context) error {
	return Default().ClearAttempts(ctx)
}

// WithOverride runs fn with the default engine's mask and telemetry flag
// replaced, restoring them when fn returns. See Engine.WithOverride.
func WithOverride(ctx context.Context, mask Capability, telemetry bool, fn func(ctx context.Context) error) error {
	return Default().WithOverride(ctx, mask, telemetry, fn)
}
