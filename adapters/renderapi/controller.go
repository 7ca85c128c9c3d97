package renderapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errorslib "github.com/goliatone/go-errors"
	"github.com/goliatone/go-nbexport/nbexport"
)

// DefaultMaxBufferBytes is the fallback buffer limit when streaming is
// unavailable.
const DefaultMaxBufferBytes int64 = 8 * 1024 * 1024

// SessionHeader carries the client session id. Requests with the same value
// share one attempt log; requests without it use the process-wide log.
const SessionHeader = "X-Render-Session"

// Config configures the shared render API controller.
type Config struct {
	Service        nbexport.Service
	BasePath       string
	Logger         nbexport.Logger
	RequestDecoder RequestDecoder
	MaxBufferBytes int64
	SessionTTL     time.Duration
	Now            func() time.Time
}

// Controller exposes render API handlers for multiple transports.
type Controller struct {
	service        nbexport.Service
	basePath       string
	logger         nbexport.Logger
	requestDecoder RequestDecoder
	maxBufferBytes int64
	sessions       *sessionRegistry
}

// NewController creates a shared render API controller.
func NewController(cfg Config) *Controller {
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath == "" {
		basePath = "/admin/renders"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nbexport.NopLogger{}
	}
	decoder := cfg.RequestDecoder
	if decoder == nil {
		decoder = JSONRequestDecoder{}
	}
	maxBuffer := cfg.MaxBufferBytes
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBufferBytes
	}
	return &Controller{
		service:        cfg.Service,
		basePath:       basePath,
		logger:         logger,
		requestDecoder: decoder,
		maxBufferBytes: maxBuffer,
		sessions:       newSessionRegistry(cfg.Service, cfg.SessionTTL, cfg.Now),
	}
}

// BasePath returns the configured base path.
func (c *Controller) BasePath() string {
	if c == nil {
		return ""
	}
	return c.basePath
}

// Serve routes render endpoints using the shared controller.
//
//	POST   {base}            render a document (JSON payload)
//	GET    {base}            render a document (query params)
//	POST   {base}/override   render under a scoped capability override
//	GET    {base}/markup     themed HTML, served inline
//	GET    {base}/summary    cell summary download (xlsx or csv)
//	GET    {base}/attempts   attempt log as JSON
//	GET    {base}/backends   registered backends as JSON
//	DELETE {base}/attempts   clear the attempt log
//	DELETE {base}/cache      drop every memoized render
func (c *Controller) Serve(req Request, res Response) {
	if res == nil {
		return
	}
	if c == nil {
		WriteError(res, nbexport.NewError(nbexport.KindInternal, "handler is nil", nil))
		return
	}
	if req == nil {
		WriteError(res, nbexport.NewError(nbexport.KindInternal, "request is nil", nil))
		return
	}
	if !strings.HasPrefix(req.Path(), c.basePath) {
		writeNotFound(res)
		return
	}

	pathSuffix := strings.TrimPrefix(req.Path(), c.basePath)
	pathSuffix = strings.Trim(pathSuffix, "/")
	parts := []string{}
	if pathSuffix != "" {
		parts = strings.Split(pathSuffix, "/")
	}

	switch req.Method() {
	case http.MethodPost:
		switch {
		case len(parts) == 0:
			c.handleRender(req, res)
		case len(parts) == 1 && parts[0] == "override":
			c.handleOverride(req, res)
		default:
			writeNotFound(res)
		}
	case http.MethodGet:
		switch len(parts) {
		case 0:
			c.handleRenderQuery(req, res)
		case 1:
			switch parts[0] {
			case "markup":
				c.handleMarkup(req, res)
			case "summary":
				c.handleSummary(req, res)
			case "attempts":
				c.handleAttempts(req, res)
			case "backends":
				c.handleBackends(req, res)
			default:
				writeNotFound(res)
			}
		default:
			writeNotFound(res)
		}
	case http.MethodDelete:
		if len(parts) != 1 {
			writeNotFound(res)
			return
		}
		switch parts[0] {
		case "attempts":
			c.handleClearAttempts(req, res)
		case "cache":
			c.handleClearCache(req, res)
		default:
			writeNotFound(res)
		}
	default:
		res.SetHeader("Allow", "GET,POST,DELETE")
		res.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (c *Controller) handleRender(req Request, res Response) {
	if c.requestDecoder == nil {
		WriteError(res, nbexport.NewError(nbexport.KindInternal, "request decoder not configured", nil))
		return
	}
	decoded, err := c.requestDecoder.Decode(req)
	if err != nil {
		WriteError(res, err)
		return
	}
	c.renderDocument(req, res, decoded)
}

func (c *Controller) handleRenderQuery(req Request, res Response) {
	decoded, err := QueryRequestDecoder{}.Decode(req)
	if err != nil {
		WriteError(res, err)
		return
	}
	c.renderDocument(req, res, decoded)
}

func (c *Controller) renderDocument(req Request, res Response, renderReq nbexport.ExportRequest) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}

	result, err := svc.RenderDocument(req.Context(), renderReq)
	if err != nil {
		WriteError(res, err)
		return
	}
	c.writeDocument(res, result)
}

func (c *Controller) handleOverride(req Request, res Response) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}

	renderReq, telemetry, err := decodeOverride(req)
	if err != nil {
		WriteError(res, err)
		return
	}

	var result nbexport.ExportResult
	err = svc.Override(req.Context(), renderReq.Mask, telemetry, func(ctx context.Context) error {
		rendered, renderErr := svc.RenderDocument(ctx, renderReq)
		if renderErr != nil {
			return renderErr
		}
		result = rendered
		return nil
	})
	if err != nil {
		WriteError(res, err)
		return
	}
	c.writeDocument(res, result)
}

func (c *Controller) handleMarkup(req Request, res Response) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}

	path := strings.TrimSpace(req.Query("path"))
	markup, err := svc.RenderMarkup(req.Context(), path, req.Query("theme"))
	if err != nil {
		WriteError(res, err)
		return
	}

	filename := strings.TrimSpace(markup.Title)
	if filename == "" {
		filename = "notebook"
	}
	setInlineHeaders(res, sanitizeFilename(filename+".html", nbexport.FormatHTML))
	res.SetHeader("X-Render-Theme", markup.Theme)
	res.WriteHeader(http.StatusOK)
	if _, err := res.Write([]byte(markup.HTML)); err != nil {
		c.logger.Errorf("markup write failed: %v", err)
	}
}

func (c *Controller) handleSummary(req Request, res Response) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}

	path := strings.TrimSpace(req.Query("path"))
	format := summaryFormat(req.Query("format"))
	filename := sanitizeFilename(nbexport.BuildResources(path).Title+"."+string(format), format)
	setDownloadHeaders(res, "", filename, nbexport.ContentTypeForFormat(format))

	if writer, ok := res.Writer(); ok {
		tracker := &trackingWriter{writer: writer}
		if _, err := svc.RenderSummary(req.Context(), path, format, tracker); err != nil {
			if !tracker.Written() {
				clearDownloadHeaders(res)
				WriteError(res, err)
				return
			}
			c.logger.Errorf("summary failed after write: %v", err)
		}
		return
	}

	buffer := newLimitedBuffer(c.maxBufferBytes)
	if _, err := svc.RenderSummary(req.Context(), path, format, buffer); err != nil {
		if !buffer.Written() {
			clearDownloadHeaders(res)
			WriteError(res, err)
			return
		}
		c.logger.Errorf("summary failed after buffer write: %v", err)
	}

	res.WriteHeader(http.StatusOK)
	if _, err := res.Write(buffer.Bytes()); err != nil {
		c.logger.Errorf("summary buffer write failed: %v", err)
	}
}

func (c *Controller) handleAttempts(req Request, res Response) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}

	records, err := svc.Attempts(req.Context())
	if err != nil {
		WriteError(res, err)
		return
	}
	if records == nil {
		records = []nbexport.AttemptRecord{}
	}
	writeJSON(res, http.StatusOK, records)
}

func (c *Controller) handleBackends(req Request, res Response) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}
	writeJSON(res, http.StatusOK, svc.Backends())
}

func (c *Controller) handleClearAttempts(req Request, res Response) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}
	if err := svc.ClearAttempts(req.Context()); err != nil {
		WriteError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

func (c *Controller) handleClearCache(req Request, res Response) {
	svc := c.sessionService(req)
	if svc == nil {
		WriteError(res, nbexport.NewError(nbexport.KindNotImpl, "render service not configured", nil))
		return
	}
	if err := svc.ClearCache(req.Context()); err != nil {
		WriteError(res, err)
		return
	}
	res.WriteHeader(http.StatusNoContent)
}

func (c *Controller) writeDocument(res Response, result nbexport.ExportResult) {
	filename := sanitizeFilename(result.Filename, result.Format)
	setDownloadHeaders(res, result.ID, filename, result.ContentType)
	if result.Backend != "" {
		res.SetHeader("X-Render-Backend", result.Backend)
	}
	res.SetHeader("X-Render-Cached", strconv.FormatBool(result.Cached))
	res.SetHeader("Content-Length", fmt.Sprintf("%d", len(result.Body)))
	res.WriteHeader(http.StatusOK)
	if _, err := res.Write(result.Body); err != nil {
		c.logger.Errorf("document write failed: %v", err)
	}
}

// sessionService resolves the service for the request's session header. The
// cache stays shared across sessions; only attempts and overrides isolate.
func (c *Controller) sessionService(req Request) nbexport.Service {
	id := strings.TrimSpace(req.Header(SessionHeader))
	if id == "" {
		return c.service
	}
	return c.sessions.For(id)
}

func writeNotFound(res Response) {
	res.SetHeader("Content-Type", "text/plain; charset=utf-8")
	res.SetHeader("X-Content-Type-Options", "nosniff")
	res.WriteHeader(http.StatusNotFound)
	_, _ = res.Write([]byte("404 page not found\n"))
}

// WriteError maps an error onto its JSON shape and HTTP status.
func WriteError(res Response, err error) {
	if err == nil {
		res.WriteHeader(http.StatusNoContent)
		return
	}
	ge := nbexport.AsGoError(err)
	status := statusForError(ge)
	payload := ErrorResponse{
		Error: ErrorBody{
			Message: ge.Message,
			Code:    ge.TextCode,
		},
	}
	writeJSON(res, status, payload)
}

func writeJSON(res Response, status int, payload any) {
	_ = res.WriteJSON(status, payload)
}

func statusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	if err.TextCode == "not_implemented" {
		return http.StatusNotImplemented
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryNotFound:
		return http.StatusNotFound
	case errorslib.CategoryOperation:
		switch err.TextCode {
		case "unavailable":
			return http.StatusServiceUnavailable
		case "canceled":
			return http.StatusConflict
		default:
			return http.StatusRequestTimeout
		}
	default:
		return http.StatusInternalServerError
	}
}

// summaryFormat folds wire aliases onto the summary formats; unknown values
// pass through and fail renderer resolution.
func summaryFormat(raw string) nbexport.Format {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "", "xlsx", "excel", "xls":
		return nbexport.FormatXLSX
	case "csv":
		return nbexport.FormatCSV
	default:
		return nbexport.Format(normalized)
	}
}

func sanitizeFilename(filename string, format nbexport.Format) string {
	name := strings.TrimSpace(filename)
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		if format != "" {
			name = fmt.Sprintf("render.%s", format)
		} else {
			name = "render"
		}
	}
	return name
}

func setDownloadHeaders(res Response, renderID, filename, contentType string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	res.SetHeader("Content-Type", contentType)
	res.SetHeader("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	if renderID != "" {
		res.SetHeader("X-Render-Id", renderID)
	}
}

func setInlineHeaders(res Response, filename string) {
	res.SetHeader("Content-Type", "text/html; charset=utf-8")
	res.SetHeader("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", filename))
}

func clearDownloadHeaders(res Response) {
	res.DelHeader("Content-Disposition")
	res.DelHeader("Content-Type")
	res.DelHeader("X-Render-Id")
}

type trackingWriter struct {
	writer  io.Writer
	written bool
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	w.written = true
	return w.writer.Write(p)
}

func (w *trackingWriter) Written() bool {
	return w.written
}

type limitedBuffer struct {
	buf     bytes.Buffer
	maxSize int64
	written bool
}

func newLimitedBuffer(maxSize int64) *limitedBuffer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferBytes
	}
	return &limitedBuffer{maxSize: maxSize}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.maxSize > 0 && int64(b.buf.Len()+len(p)) > b.maxSize {
		return 0, nbexport.NewError(nbexport.KindInternal, "buffer limit exceeded", nil)
	}
	b.written = true
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}

func (b *limitedBuffer) Written() bool {
	return b.written
}

func (b *limitedBuffer) Len() int {
	return b.buf.Len()
}
