package nbexportrouter

import (
	"github.com/goliatone/go-nbexport/adapters/renderapi"
	"github.com/goliatone/go-nbexport/nbexport"
	"github.com/goliatone/go-router"
)

// Config configures the go-router adapter.
type Config = renderapi.Config

// Handler exposes render routes for go-router.
type Handler struct {
	controller *renderapi.Controller
}

// NewHandler creates a go-router handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{controller: renderapi.NewController(cfg)}
}

// RegisterRoutes registers routes on a compatible go-router router.
func (h *Handler) RegisterRoutes(router any) {
	r, ok := router.(routeRegistrar)
	if !ok {
		return
	}
	base := h.basePath()

	r.Post(base, h.Handle)
	r.Post(base+"/", h.Handle)
	r.Post(base+"/override", h.Handle)
	r.Get(base, h.Handle)
	r.Get(base+"/", h.Handle)
	r.Get(base+"/markup", h.Handle)
	r.Get(base+"/summary", h.Handle)
	r.Get(base+"/attempts", h.Handle)
	r.Get(base+"/backends", h.Handle)
	r.Delete(base+"/attempts", h.Handle)
	r.Delete(base+"/cache", h.Handle)
}

// Handle executes the shared render workflow.
func (h *Handler) Handle(c router.Context) error {
	if c == nil {
		return nil
	}
	if h == nil || h.controller == nil {
		renderapi.WriteError(routerResponse{ctx: c}, nbexport.NewError(nbexport.KindInternal, "handler is nil", nil))
		return nil
	}
	h.controller.Serve(routerRequest{ctx: c}, routerResponse{ctx: c})
	return nil
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

type routeRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}
