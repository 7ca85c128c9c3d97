package nbexporthttp

import (
	"net/http"

	"github.com/goliatone/go-nbexport/adapters/renderapi"
	"github.com/goliatone/go-nbexport/nbexport"
)

// Config configures the HTTP adapter.
type Config = renderapi.Config

// Handler exposes render HTTP endpoints.
type Handler struct {
	controller *renderapi.Controller
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{controller: renderapi.NewController(cfg)}
}

// RegisterRoutes registers handlers on a compatible router.
func (h *Handler) RegisterRoutes(router any) {
	switch r := router.(type) {
	case interface{ Handle(string, http.Handler) }:
		r.Handle(h.basePath(), h)
		r.Handle(h.basePath()+"/", h)
	case interface {
		HandleFunc(string, func(http.ResponseWriter, *http.Request))
	}:
		r.HandleFunc(h.basePath(), h.ServeHTTP)
		r.HandleFunc(h.basePath()+"/", h.ServeHTTP)
	}
}

// ServeHTTP routes render endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if w == nil {
		return
	}
	if h == nil || h.controller == nil {
		renderapi.WriteError(httpResponse{w: w}, nbexport.NewError(nbexport.KindInternal, "handler is nil", nil))
		return
	}
	h.controller.Serve(httpRequest{r: r}, httpResponse{w: w})
}

func (h *Handler) basePath() string {
	if h == nil || h.controller == nil {
		return "/admin/renders"
	}
	path := h.controller.BasePath()
	if path == "" {
		return "/admin/renders"
	}
	return path
}
