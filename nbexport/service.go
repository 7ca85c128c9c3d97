package nbexport

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// MarkupResult is the outcome of a markup render.
type MarkupResult struct {
	HTML  string
	Theme string
	Title string
}

// ExportRequest describes one document render. Mask is taken literally: an
// empty mask disables every backend and the request resolves to not
// available. Transports that want the default mask apply it before calling.
type ExportRequest struct {
	Path  string
	Theme string
	Mask  Capability
}

// ExportResult is the outcome of a document render.
type ExportResult struct {
	ID           string
	Path         string
	Format       Format
	Body         []byte
	AppliedTheme string
	Backend      string
	Cached       bool
	Filename     string
	ContentType  string
	ArtifactKey  string
	CreatedAt    time.Time
}

// BackendInfo describes a registered backend for discovery surfaces.
type BackendInfo struct {
	Name       string     `json:"name"`
	Capability Capability `json:"capability"`
	InDefault  bool       `json:"in_default"`
}

// Service coordinates render operations across the engine, the summary
// registry, and the artifact store.
type Service interface {
	RenderMarkup(ctx context.Context, path, theme string) (MarkupResult, error)
	RenderDocument(ctx context.Context, req ExportRequest) (ExportResult, error)
	RenderSummary(ctx context.Context, path string, format Format, w io.Writer) (SummaryStats, error)
	Attempts(ctx context.Context) ([]AttemptRecord, error)
	ClearAttempts(ctx context.Context) error
	ClearCache(ctx context.Context, keys ...CacheKey) error
	Override(ctx context.Context, mask Capability, telemetry bool, fn func(ctx context.Context) error) error
	Backends() []BackendInfo
	Session(id string) Service
}

// ServiceConfig supplies dependencies for Service.
type ServiceConfig struct {
	Engine          *Engine
	Summaries       *SummaryRegistry
	Store           ArtifactStore
	FilenamePattern string
	SummaryOptions  SummaryOptions
	Now             func() time.Time
	IDGenerator     func() string
}

type service struct {
	engine          *Engine
	summaries       *SummaryRegistry
	store           ArtifactStore
	filenamePattern string
	summaryOptions  SummaryOptions
	now             func() time.Time
	idGenerator     func() string
}

// NewService creates a Service with the provided configuration.
func NewService(cfg ServiceConfig) Service {
	engine := cfg.Engine
	if engine == nil {
		engine = NewEngine()
	}

	summaries := cfg.Summaries
	if summaries == nil {
		summaries = NewSummaryRegistry()
		_ = summaries.Register(FormatXLSX, XLSXSummaryRenderer{})
		_ = summaries.Register(FormatCSV, CSVSummaryRenderer{})
	}

	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}

	opts := cfg.SummaryOptions
	if opts == (SummaryOptions{}) {
		opts = SummaryOptions{IncludeHeader: true}
	}

	return &service{
		engine:          engine,
		summaries:       summaries,
		store:           cfg.Store,
		filenamePattern: cfg.FilenamePattern,
		summaryOptions:  opts,
		now:             nowFn,
		idGenerator:     idGen,
	}
}

// RenderMarkup renders the notebook at path to themed HTML.
func (s *service) RenderMarkup(ctx context.Context, path, theme string) (MarkupResult, error) {
	if s == nil {
		return MarkupResult{}, AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	if path == "" {
		return MarkupResult{}, AsGoError(NewError(KindValidation, "notebook path is required", nil))
	}

	doc, err := s.document(path)
	if err != nil {
		return MarkupResult{}, AsGoError(err)
	}

	html, err := s.engine.RenderMarkup(ctx, doc, theme)
	if err != nil {
		return MarkupResult{}, AsGoError(err)
	}
	return MarkupResult{
		HTML:  html,
		Theme: NormalizeTheme(theme),
		Title: BuildResources(path).Title,
	}, nil
}

// RenderDocument runs the fallback export and, when a store is configured,
// persists the winning document. Exhaustion keeps its unavailable kind so
// callers can branch on IsNotAvailable.
func (s *service) RenderDocument(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if s == nil {
		return ExportResult{}, AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	if req.Path == "" {
		return ExportResult{}, AsGoError(NewError(KindValidation, "notebook path is required", nil))
	}

	doc, err := s.document(req.Path)
	if err != nil {
		return ExportResult{}, AsGoError(err)
	}

	rendered, err := s.engine.RenderDocument(ctx, doc, req.Theme, req.Mask)
	if err != nil {
		return ExportResult{}, AsGoError(err)
	}

	filename, err := renderFilename(s.filenamePattern, BuildResources(req.Path), FormatPDF)
	if err != nil {
		return ExportResult{}, AsGoError(err)
	}

	result := ExportResult{
		ID:           s.idGenerator(),
		Path:         req.Path,
		Format:       FormatPDF,
		Body:         rendered.Body,
		AppliedTheme: rendered.AppliedTheme,
		Backend:      rendered.Backend,
		Cached:       rendered.Cached,
		Filename:     filename,
		ContentType:  ContentTypeForFormat(FormatPDF),
		CreatedAt:    s.now(),
	}

	if s.store != nil {
		key := s.artifactKey(result.ID, FormatPDF)
		if err := s.store.Save(ctx, key, result.ContentType, result.Body); err != nil {
			return ExportResult{}, AsGoError(NewError(KindInternal, fmt.Sprintf("persisting render %s", result.ID), err))
		}
		result.ArtifactKey = key
	}
	return result, nil
}

// RenderSummary writes the notebook digest in the requested tabular format.
func (s *service) RenderSummary(ctx context.Context, path string, format Format, w io.Writer) (SummaryStats, error) {
	if s == nil {
		return SummaryStats{}, AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	if path == "" {
		return SummaryStats{}, AsGoError(NewError(KindValidation, "notebook path is required", nil))
	}
	if w == nil {
		return SummaryStats{}, AsGoError(NewError(KindValidation, "summary writer is required", nil))
	}

	renderer, ok := s.summaries.Resolve(format)
	if !ok {
		return SummaryStats{}, AsGoError(NewError(KindValidation, fmt.Sprintf("no summary renderer for format %q", format), nil))
	}

	doc, err := s.document(path)
	if err != nil {
		return SummaryStats{}, AsGoError(err)
	}
	nb, err := s.engine.loadNotebook(ctx, path)
	if err != nil {
		return SummaryStats{}, AsGoError(err)
	}

	stats, err := renderer.RenderSummary(ctx, RenderInput{
		Document:  doc,
		Notebook:  nb,
		Resources: BuildResources(path),
	}, w, s.summaryOptions)
	if err != nil {
		return stats, AsGoError(err)
	}
	return stats, nil
}

// Attempts returns the engine's attempt log.
func (s *service) Attempts(ctx context.Context) ([]AttemptRecord, error) {
	if s == nil {
		return nil, AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	records, err := s.engine.ListAttempts(ctx)
	if err != nil {
		return nil, AsGoError(err)
	}
	return records, nil
}

// ClearAttempts drops the engine's attempt log.
func (s *service) ClearAttempts(ctx context.Context) error {
	if s == nil {
		return AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	if err := s.engine.ClearAttempts(ctx); err != nil {
		return AsGoError(err)
	}
	return nil
}

// ClearCache invalidates memoized renders.
func (s *service) ClearCache(ctx context.Context, keys ...CacheKey) error {
	if s == nil {
		return AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	if err := s.engine.ClearCache(ctx, keys...); err != nil {
		return AsGoError(err)
	}
	return nil
}

// Override runs fn under a scoped mask and telemetry override.
func (s *service) Override(ctx context.Context, mask Capability, telemetry bool, fn func(ctx context.Context) error) error {
	if s == nil {
		return AsGoError(NewError(KindInternal, "service is nil", nil))
	}
	return s.engine.WithOverride(ctx, mask, telemetry, fn)
}

// Backends lists registered backends in fallback order.
func (s *service) Backends() []BackendInfo {
	if s == nil {
		return nil
	}
	defaults := DefaultCapabilities()
	order := s.engine.backendOrder()
	infos := make([]BackendInfo, 0, len(order))
	for _, b := range order {
		infos = append(infos, BackendInfo{
			Name:       b.Name(),
			Capability: b.Capability(),
			InDefault:  defaults.Contains(b.Capability()),
		})
	}
	return infos
}

// Session derives a service whose attempt log and overrides are isolated.
func (s *service) Session(id string) Service {
	if s == nil {
		return nil
	}
	return &service{
		engine:          s.engine.Session(id),
		summaries:       s.summaries,
		store:           s.store,
		filenamePattern: s.filenamePattern,
		summaryOptions:  s.summaryOptions,
		now:             s.now,
		idGenerator:     s.idGenerator,
	}
}

func (s *service) document(path string) (Document, error) {
	fingerprint, err := FileFingerprint(path)
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, Fingerprint: fingerprint}, nil
}

func (s *service) artifactKey(id string, format Format) string {
	return fmt.Sprintf("renders/%s.%s", id, format)
}
