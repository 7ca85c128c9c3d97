package nbexport

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-nbexport/notebook"
)

// Format is the derived output format.
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Theme values accepted by themed renderers.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// NormalizeTheme folds arbitrary UI theme labels onto the two supported
// values. Anything that is not "dark" renders light.
func NormalizeTheme(theme string) string {
	if strings.EqualFold(strings.TrimSpace(theme), ThemeDark) {
		return ThemeDark
	}
	return ThemeLight
}

// Document identifies a source notebook by stable path plus a content
// fingerprint. The fingerprint participates in every cache key; when it
// changes, every derived entry for the document is effectively invalidated.
type Document struct {
	Path        string
	Fingerprint string
}

// NewDocument stats path and derives a modification-time fingerprint.
// A missing file fails here, before any backend is attempted.
func NewDocument(path string) (Document, error) {
	fingerprint, err := FileFingerprint(path)
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, Fingerprint: fingerprint}, nil
}

// FileFingerprint derives a fingerprint from the file's last modification
// time.
func FileFingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewError(KindNotFound, fmt.Sprintf("notebook %q not found", path), err)
		}
		return "", NewError(KindInternal, fmt.Sprintf("stat notebook %q", path), err)
	}
	return strconv.FormatInt(info.ModTime().UnixNano(), 16), nil
}

// RenderInput carries everything a backend needs for one attempt. Resources
// are built once per render call and passed unmodified to every backend.
type RenderInput struct {
	Document  Document
	Notebook  *notebook.Notebook
	Resources Resources
	Theme     string
}

// BackendResult is a single backend's output. AppliedTheme is empty when the
// backend's output is not themed (the LaTeX toolchain path).
type BackendResult struct {
	Body         []byte
	AppliedTheme string
}

// Backend is one concrete document renderer in the fallback chain.
type Backend interface {
	Name() string
	Capability() Capability
	Render(ctx context.Context, in RenderInput) (BackendResult, error)
}

// RenderFunc is the signature of a backend conversion function.
type RenderFunc func(ctx context.Context, in RenderInput) (BackendResult, error)

// NewBackend adapts a conversion function into a Backend.
func NewBackend(name string, bit Capability, fn RenderFunc) Backend {
	return &funcBackend{name: name, bit: bit, fn: fn}
}

type funcBackend struct {
	name string
	bit  Capability
	fn   RenderFunc
}

func (b *funcBackend) Name() string           { return b.name }
func (b *funcBackend) Capability() Capability { return b.bit }

func (b *funcBackend) Render(ctx context.Context, in RenderInput) (BackendResult, error) {
	if b.fn == nil {
		return BackendResult{}, NewError(KindNotImpl, fmt.Sprintf("backend %q has no render function", b.name), nil)
	}
	return b.fn(ctx, in)
}

// MarkupRenderer produces themed HTML markup for a notebook. It backs the
// markup entry point and the HTML-based document backends.
type MarkupRenderer interface {
	RenderHTML(ctx context.Context, in RenderInput) ([]byte, error)
}

// ResultValidator optionally vets backend output beyond the built-in
// non-empty check. A validation error counts as a backend failure and falls
// through to the next backend.
type ResultValidator interface {
	ValidateResult(ctx context.Context, format Format, body []byte) error
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// MetricsEvent describes one observed render lifecycle point.
type MetricsEvent struct {
	Name      string
	Backend   string
	Format    Format
	Status    AttemptStatus
	Cached    bool
	Duration  time.Duration
	ErrorKind ErrorKind
	Timestamp time.Time
}

// MetricsHook emits metrics-friendly lifecycle observations.
type MetricsHook interface {
	Emit(ctx context.Context, evt MetricsEvent) error
}

// ArtifactStore persists rendered documents.
type ArtifactStore interface {
	Save(ctx context.Context, key string, contentType string, body []byte) error
	Open(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// ContentTypeForFormat maps a format onto its MIME type.
func ContentTypeForFormat(format Format) string {
	switch format {
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
