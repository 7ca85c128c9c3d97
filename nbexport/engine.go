package nbexport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-nbexport/notebook"
)

// Engine drives the fallback chain: given a notebook and a capability mask it
// tries each eligible backend in priority order, records per-attempt
// telemetry, and returns the first non-failing result. Backends are never
// raced; trying backend n+1 only starts after backend n failed.
type Engine struct {
	// SessionID tags this engine's telemetry. Empty for the process engine.
	SessionID string

	Backends       []Backend
	Source         notebook.Source
	Markup         MarkupRenderer
	Cache          *RenderCache
	Attempts       AttemptStore
	Logger         Logger
	Metrics        MetricsHook
	Validator      ResultValidator
	DefaultTheme   string
	AttemptTimeout time.Duration
	Now            func() time.Time
	IDGenerator    func() string

	mu           sync.Mutex
	overrideMask *Capability
	telemetry    *bool
}

// DocumentResult is the outcome of a fallback-driven document render.
// AppliedTheme is empty when the winning backend does not theme its output.
type DocumentResult struct {
	Body         []byte
	AppliedTheme string
	Backend      string
	Cached       bool
}

// NewEngine creates an engine with in-memory telemetry and cache. Backends
// are left empty; callers register adapter backends or assign the slice.
func NewEngine() *Engine {
	return &Engine{
		Source:      &notebook.FSSource{},
		Markup:      NewHTMLRenderer(),
		Cache:       NewRenderCache(),
		Attempts:    NewMemoryAttemptLog(),
		Logger:      NopLogger{},
		Now:         time.Now,
		IDGenerator: defaultIDGenerator(),
	}
}

// Session returns an engine whose attempt log and override state are
// isolated for one logical client. Backends, source, markup renderer, cache,
// and hooks are shared; the cache key already encodes every input, so
// sharing it across sessions is safe.
func (e *Engine) Session(id string) *Engine {
	if id == "" {
		id = e.nextID()
	}
	return &Engine{
		SessionID:      id,
		Backends:       e.Backends,
		Source:         e.Source,
		Markup:         e.Markup,
		Cache:          e.Cache,
		Attempts:       NewMemoryAttemptLog(),
		Logger:         e.Logger,
		Metrics:        e.Metrics,
		Validator:      e.Validator,
		DefaultTheme:   e.DefaultTheme,
		AttemptTimeout: e.AttemptTimeout,
		Now:            e.Now,
		IDGenerator:    e.IDGenerator,
	}
}

// RenderMarkup renders the notebook to themed HTML. Markup is not a fallback
// axis: failures here are hard errors (missing file, malformed notebook),
// never recorded in the attempt log.
func (e *Engine) RenderMarkup(ctx context.Context, doc Document, theme string) (string, error) {
	if e == nil {
		return "", NewError(KindInternal, "engine is nil", nil)
	}
	if e.Markup == nil {
		return "", NewError(KindNotImpl, "markup renderer not configured", nil)
	}

	theme = NormalizeTheme(theme)
	key := CacheKey{
		Path:        doc.Path,
		Fingerprint: doc.Fingerprint,
		Theme:       theme,
		Format:      FormatHTML,
		Mask:        CapNone,
	}

	value, cached, err := e.cache().GetOrCompute(ctx, key, func(ctx context.Context) (CachedRender, error) {
		nb, err := e.loadNotebook(ctx, doc.Path)
		if err != nil {
			return CachedRender{}, err
		}
		in := RenderInput{
			Document:  doc,
			Notebook:  nb,
			Resources: BuildResources(doc.Path),
			Theme:     theme,
		}
		body, err := e.Markup.RenderHTML(ctx, in)
		if err != nil {
			return CachedRender{}, err
		}
		return CachedRender{Body: body, AppliedTheme: theme}, nil
	})
	if err != nil {
		return "", err
	}
	e.emitMetrics(ctx, MetricsEvent{Name: "render.markup", Format: FormatHTML, Cached: cached})
	return string(value.Body), nil
}

// RenderDocument runs the memoized fallback export. Exhaustion of every
// enabled backend returns a KindUnavailable error (IsNotAvailable); callers
// treat that as an expected outcome, not a crash.
func (e *Engine) RenderDocument(ctx context.Context, doc Document, theme string, mask Capability) (DocumentResult, error) {
	if e == nil {
		return DocumentResult{}, NewError(KindInternal, "engine is nil", nil)
	}

	theme = NormalizeTheme(theme)
	effective := e.effectiveMask(mask)
	key := CacheKey{
		Path:        doc.Path,
		Fingerprint: doc.Fingerprint,
		Theme:       theme,
		Format:      FormatPDF,
		Mask:        effective,
	}

	started := e.now()
	value, cached, err := e.cache().GetOrCompute(ctx, key, func(ctx context.Context) (CachedRender, error) {
		result, err := e.execute(ctx, doc, theme, effective)
		if err != nil {
			return CachedRender{}, err
		}
		return CachedRender{
			Body:         result.Body,
			AppliedTheme: result.AppliedTheme,
			Backend:      result.Backend,
		}, nil
	})
	if err != nil {
		e.emitMetrics(ctx, MetricsEvent{
			Name:      "render.document",
			Format:    FormatPDF,
			Duration:  e.now().Sub(started),
			ErrorKind: KindFromError(err),
		})
		return DocumentResult{}, err
	}

	e.emitMetrics(ctx, MetricsEvent{
		Name:     "render.document",
		Backend:  value.Backend,
		Format:   FormatPDF,
		Cached:   cached,
		Duration: e.now().Sub(started),
	})
	return DocumentResult{
		Body:         value.Body,
		AppliedTheme: value.AppliedTheme,
		Backend:      value.Backend,
		Cached:       cached,
	}, nil
}

// execute runs the uncached fallback loop. Backends whose capability bit is
// not in the mask are skipped silently: a disabled backend was never
// "attempted" and leaves no telemetry. All other failures are caught here,
// logged as fail attempts, and never propagate to the caller.
func (e *Engine) execute(ctx context.Context, doc Document, theme string, mask Capability) (DocumentResult, error) {
	order := e.backendOrder()
	if mask == CapNone || len(order) == 0 {
		return DocumentResult{}, e.notAvailable(mask)
	}

	nb, err := e.loadNotebook(ctx, doc.Path)
	if err != nil {
		return DocumentResult{}, err
	}
	in := RenderInput{
		Document:  doc,
		Notebook:  nb,
		Resources: BuildResources(doc.Path),
		Theme:     theme,
	}

	for _, b := range order {
		if !mask.Contains(b.Capability()) {
			continue
		}

		result, err := e.attempt(ctx, b, in)
		if err == nil {
			return DocumentResult{
				Body:         result.Body,
				AppliedTheme: result.AppliedTheme,
				Backend:      b.Name(),
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return DocumentResult{}, NewError(KindCanceled, "render canceled", ctxErr)
		}
	}

	return DocumentResult{}, e.notAvailable(mask)
}

// attempt is the single instrumented call every backend invocation passes
// through: telemetry, panic recovery, the per-attempt timeout, and output
// checks all live here, outside backend bodies.
func (e *Engine) attempt(ctx context.Context, b Backend, in RenderInput) (BackendResult, error) {
	telemetry := e.telemetryEnabled()
	name := b.Name()
	started := e.now()

	if telemetry {
		e.record(ctx, AttemptRecord{Backend: name, Status: StatusTrying})
	}

	attemptCtx := ctx
	if e.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.AttemptTimeout)
		defer cancel()
	}

	result, err := invokeBackend(attemptCtx, b, in)
	if err == nil && len(result.Body) == 0 {
		err = NewError(KindInternal, fmt.Sprintf("backend %q produced empty output", name), nil)
	}
	if err == nil && e.Validator != nil {
		if verr := e.Validator.ValidateResult(ctx, FormatPDF, result.Body); verr != nil {
			err = NewError(KindInternal, fmt.Sprintf("backend %q output rejected", name), verr)
		}
	}

	elapsed := e.now().Sub(started)
	if err != nil {
		if telemetry {
			e.record(ctx, AttemptRecord{Backend: name, Status: StatusFail, Note: DiagnosticNote(err)})
		}
		e.logger().Debugf("backend %s failed after %s: %v", name, elapsed, err)
		e.emitMetrics(ctx, MetricsEvent{
			Name:      "render.attempt",
			Backend:   name,
			Format:    FormatPDF,
			Status:    StatusFail,
			Duration:  elapsed,
			ErrorKind: KindFromError(err),
		})
		return BackendResult{}, err
	}

	if telemetry {
		e.record(ctx, AttemptRecord{Backend: name, Status: StatusOK})
	}
	e.logger().Debugf("backend %s succeeded in %s", name, elapsed)
	e.emitMetrics(ctx, MetricsEvent{
		Name:     "render.attempt",
		Backend:  name,
		Format:   FormatPDF,
		Status:   StatusOK,
		Duration: elapsed,
	})
	return result, nil
}

// invokeBackend shields the executor from panicking converters; a panic is
// one more recoverable backend failure.
func invokeBackend(ctx context.Context, b Backend, in RenderInput) (result BackendResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(KindInternal, fmt.Sprintf("backend %q panicked: %v", b.Name(), r), nil)
		}
	}()
	return b.Render(ctx, in)
}

// WithOverride replaces the active mask and telemetry flag for the duration
// of fn, restoring the enclosing state unconditionally: a crashed render
// must not leave the engine stuck in forced-debug mode. Overrides nest like
// a stack. Entering with telemetry enabled clears the attempt log so the
// override's attempts start from empty.
func (e *Engine) WithOverride(ctx context.Context, mask Capability, telemetry bool, fn func(ctx context.Context) error) error {
	if e == nil {
		return NewError(KindInternal, "engine is nil", nil)
	}
	if fn == nil {
		return NewError(KindValidation, "override function is required", nil)
	}

	e.mu.Lock()
	prevMask := e.overrideMask
	prevTelemetry := e.telemetry
	m := mask
	t := telemetry
	e.overrideMask = &m
	e.telemetry = &t
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.overrideMask = prevMask
		e.telemetry = prevTelemetry
		e.mu.Unlock()
	}()

	if telemetry {
		if err := e.attempts().Clear(ctx); err != nil {
			e.logger().Errorf("clearing attempt log: %v", err)
		}
	}

	return fn(ctx)
}

// ActiveMask returns the override mask and whether one is set.
func (e *Engine) ActiveMask() (Capability, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.overrideMask == nil {
		return CapNone, false
	}
	return *e.overrideMask, true
}

// TelemetryEnabled reports whether attempts are being recorded. Telemetry is
// on unless an override turned it off.
func (e *Engine) TelemetryEnabled() bool {
	return e.telemetryEnabled()
}

// ListAttempts returns a defensive copy of the attempt log in record order.
func (e *Engine) ListAttempts(ctx context.Context) ([]AttemptRecord, error) {
	return e.attempts().Snapshot(ctx)
}

// ClearAttempts drops the attempt log.
func (e *Engine) ClearAttempts(ctx context.Context) error {
	return e.attempts().Clear(ctx)
}

// ClearCache invalidates memoized renders: the given keys, or everything.
func (e *Engine) ClearCache(ctx context.Context, keys ...CacheKey) error {
	return e.cache().Clear(ctx, keys...)
}

func (e *Engine) effectiveMask(mask Capability) Capability {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.overrideMask != nil {
		return *e.overrideMask
	}
	return mask
}

func (e *Engine) telemetryEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.telemetry == nil {
		return true
	}
	return *e.telemetry
}

func (e *Engine) backendOrder() []Backend {
	out := make([]Backend, 0, len(e.Backends))
	for _, bit := range capabilityOrder {
		for _, b := range e.Backends {
			if b != nil && b.Capability() == bit {
				out = append(out, b)
			}
		}
	}
	return out
}

func (e *Engine) loadNotebook(ctx context.Context, path string) (*notebook.Notebook, error) {
	source := e.Source
	if source == nil {
		source = &notebook.FSSource{}
	}
	nb, err := source.Load(ctx, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewError(KindNotFound, fmt.Sprintf("notebook %q not found", path), err)
		}
		return nil, NewError(KindValidation, fmt.Sprintf("loading notebook %q", path), err)
	}
	return nb, nil
}

func (e *Engine) notAvailable(mask Capability) error {
	return NewError(KindUnavailable, fmt.Sprintf("no enabled backend produced a document (mask %s)", mask), nil)
}

func (e *Engine) record(ctx context.Context, rec AttemptRecord) {
	if err := e.attempts().Record(ctx, rec); err != nil {
		e.logger().Errorf("recording attempt %s/%s: %v", rec.Backend, rec.Status, err)
	}
}

func (e *Engine) emitMetrics(ctx context.Context, evt MetricsEvent) {
	if e.Metrics == nil {
		return
	}
	evt.Timestamp = e.now()
	_ = e.Metrics.Emit(ctx, evt)
}

func (e *Engine) attempts() AttemptStore {
	if e.Attempts == nil {
		return NopAttempts{}
	}
	return e.Attempts
}

func (e *Engine) cache() *RenderCache {
	return e.Cache
}

func (e *Engine) logger() Logger {
	if e.Logger == nil {
		return NopLogger{}
	}
	return e.Logger
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nextID() string {
	if e.IDGenerator != nil {
		return e.IDGenerator()
	}
	return defaultIDGenerator()()
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

func defaultIDGenerator() func() string {
	var counter uint64
	return func() string {
		id := atomic.AddUint64(&counter, 1)
		return fmt.Sprintf("render-%d", id)
	}
}
