package renderapi

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/goliatone/go-nbexport/nbexport"
)

// Request provides minimal request access for transport adapters.
type Request interface {
	Context() context.Context
	Method() string
	Path() string
	Header(name string) string
	Query(name string) string
	Body() io.ReadCloser
}

// RequestDecoder parses an HTTP request into a render request.
type RequestDecoder interface {
	Decode(req Request) (nbexport.ExportRequest, error)
}

// JSONRequestDecoder decodes JSON bodies into render requests.
type JSONRequestDecoder struct{}

// Decode decodes a JSON request body into a render request.
func (d JSONRequestDecoder) Decode(req Request) (nbexport.ExportRequest, error) {
	if req == nil {
		return nbexport.ExportRequest{}, nbexport.NewError(nbexport.KindInternal, "request is nil", nil)
	}
	body := req.Body()
	if body == nil {
		return nbexport.ExportRequest{}, nbexport.NewError(nbexport.KindValidation, "request body is required", nil)
	}
	defer body.Close()

	payload, err := decodePayload(body)
	if err != nil {
		return nbexport.ExportRequest{}, err
	}
	return payload.toExportRequest()
}

// QueryRequestDecoder decodes querystring payloads into render requests, for
// transports that trigger renders from plain links.
type QueryRequestDecoder struct{}

// Decode parses query params into a render request.
func (d QueryRequestDecoder) Decode(req Request) (nbexport.ExportRequest, error) {
	if req == nil {
		return nbexport.ExportRequest{}, nbexport.NewError(nbexport.KindInternal, "request is nil", nil)
	}
	payload := renderPayload{
		Path:     req.Query("path"),
		Theme:    req.Query("theme"),
		Backends: req.Query("backends"),
	}
	return payload.toExportRequest()
}

type renderPayload struct {
	Path     string `json:"path"`
	Theme    string `json:"theme,omitempty"`
	Backends string `json:"backends,omitempty"`
}

func (p renderPayload) toExportRequest() (nbexport.ExportRequest, error) {
	mask, err := parseMask(p.Backends)
	if err != nil {
		return nbexport.ExportRequest{}, err
	}
	return nbexport.ExportRequest{
		Path:  strings.TrimSpace(p.Path),
		Theme: p.Theme,
		Mask:  mask,
	}, nil
}

type overridePayload struct {
	Path      string `json:"path"`
	Theme     string `json:"theme,omitempty"`
	Backends  string `json:"backends,omitempty"`
	Telemetry *bool  `json:"telemetry,omitempty"`
}

// decodeOverride parses an override render payload. An absent telemetry field
// enables attempt recording.
func decodeOverride(req Request) (nbexport.ExportRequest, bool, error) {
	body := req.Body()
	if body == nil {
		return nbexport.ExportRequest{}, false, nbexport.NewError(nbexport.KindValidation, "request body is required", nil)
	}
	defer body.Close()

	var payload overridePayload
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return nbexport.ExportRequest{}, false, nbexport.NewError(nbexport.KindValidation, "invalid override payload", err)
	}

	renderReq, err := renderPayload{
		Path:     payload.Path,
		Theme:    payload.Theme,
		Backends: payload.Backends,
	}.toExportRequest()
	if err != nil {
		return nbexport.ExportRequest{}, false, err
	}

	telemetry := true
	if payload.Telemetry != nil {
		telemetry = *payload.Telemetry
	}
	return renderReq, telemetry, nil
}

// parseMask maps the wire value onto a capability mask. An absent value means
// the default mask; disabling every backend stays expressible with "none".
func parseMask(raw string) (nbexport.Capability, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nbexport.DefaultCapabilities(), nil
	}
	return nbexport.ParseCapability(trimmed)
}

func decodePayload(body io.Reader) (renderPayload, error) {
	var payload renderPayload
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		return renderPayload{}, nbexport.NewError(nbexport.KindValidation, "invalid request payload", err)
	}
	return payload, nil
}
