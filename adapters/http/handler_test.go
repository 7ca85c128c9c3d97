package nbexporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-nbexport/adapters/renderapi"
	"github.com/goliatone/go-nbexport/nbexport"
)

func newTestService(t *testing.T, backends ...nbexport.Backend) nbexport.Service {
	t.Helper()
	if len(backends) == 0 {
		backends = []nbexport.Backend{
			nbexport.NewBackend("tex", nbexport.CapTeX, func(ctx context.Context, in nbexport.RenderInput) (nbexport.BackendResult, error) {
				return nbexport.BackendResult{Body: []byte("%PDF-1.7 tex")}, nil
			}),
		}
	}
	engine := nbexport.NewEngine()
	engine.Backends = backends
	return nbexport.NewService(nbexport.ServiceConfig{Engine: engine})
}

func writeTestNotebook(t *testing.T) string {
	t.Helper()
	const doc = `{
  "nbformat": 4,
  "nbformat_minor": 5,
  "metadata": {},
  "cells": [
    {"cell_type": "markdown", "metadata": {}, "source": ["# Report"]},
    {"cell_type": "code", "execution_count": 1, "metadata": {}, "source": ["print(\"ok\")"], "outputs": []}
  ]
}`
	path := filepath.Join(t.TempDir(), "weekly_report.ipynb")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write notebook: %v", err)
	}
	return path
}

func TestHandler_RenderDocument(t *testing.T) {
	handler := NewHandler(Config{Service: newTestService(t)})
	path := writeTestNotebook(t)

	body := `{"path":` + jsonString(path) + `,"backends":"tex"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/renders", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Render-Id") == "" {
		t.Fatalf("expected X-Render-Id header")
	}
	disposition := rec.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "attachment") || !strings.Contains(disposition, "weekly-report.pdf") {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "%PDF") {
		t.Fatalf("expected pdf body, got %q", rec.Body.String())
	}
}

func TestHandler_QueryRenderCaches(t *testing.T) {
	handler := NewHandler(Config{Service: newTestService(t)})
	path := writeTestNotebook(t)
	target := "/admin/renders?path=" + path + "&backends=tex"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Render-Cached"); got != "false" {
		t.Fatalf("first render must miss the cache, got %q", got)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if got := rec.Header().Get("X-Render-Cached"); got != "true" {
		t.Fatalf("second render must hit the cache, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "%PDF") {
		t.Fatalf("cached render must carry the body, got %q", rec.Body.String())
	}
}

func TestHandler_Markup(t *testing.T) {
	handler := NewHandler(Config{Service: newTestService(t)})
	path := writeTestNotebook(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/renders/markup?path="+path+"&theme=dark", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/html") {
		t.Fatalf("expected html content type, got %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "inline") {
		t.Fatalf("expected inline disposition, got %q", got)
	}
	if got := rec.Header().Get("X-Render-Theme"); got != "dark" {
		t.Fatalf("expected dark theme header, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), `data-theme="dark"`) {
		t.Fatalf("expected themed markup, got %q", rec.Body.String())
	}
}

func TestHandler_SummaryCSV(t *testing.T) {
	handler := NewHandler(Config{Service: newTestService(t)})
	path := writeTestNotebook(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/renders/summary?path="+path+"&format=csv", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("expected text/csv, got %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "Cell,Type,Lines,Execution,Outputs,Preview") {
		t.Fatalf("expected digest header row, got %q", rec.Body.String())
	}
}

func TestHandler_SessionAttempts(t *testing.T) {
	handler := NewHandler(Config{Service: newTestService(t)})
	path := writeTestNotebook(t)

	renderReq := httptest.NewRequest(http.MethodPost, "/admin/renders", strings.NewReader(`{"path":`+jsonString(path)+`}`))
	renderReq.Header.Set(renderapi.SessionHeader, "tab-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, renderReq)
	if rec.Code != http.StatusOK {
		t.Fatalf("render failed: %d %s", rec.Code, rec.Body.String())
	}

	attemptsReq := httptest.NewRequest(http.MethodGet, "/admin/renders/attempts", nil)
	attemptsReq.Header.Set(renderapi.SessionHeader, "tab-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, attemptsReq)

	var records []nbexport.AttemptRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode attempts: %v", err)
	}
	if len(records) == 0 {
		t.Fatalf("session must see its attempts")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/renders/attempts", nil))
	records = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode attempts: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("shared log must stay empty, got %v", records)
	}
}

func TestHandler_MaskedOutUnavailable(t *testing.T) {
	handler := NewHandler(Config{Service: newTestService(t)})
	path := writeTestNotebook(t)

	body := `{"path":` + jsonString(path) + `,"backends":"qtpdf"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/renders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var payload renderapi.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if payload.Error.Code != "unavailable" {
		t.Fatalf("expected unavailable code, got %q", payload.Error.Code)
	}
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatalf("error responses must not advertise a download")
	}
}

func TestHandler_RegisterRoutes(t *testing.T) {
	handler := NewHandler(Config{Service: newTestService(t)})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/admin/renders/backends", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"capability":"tex"`) {
		t.Fatalf("expected backend listing, got %q", rec.Body.String())
	}
}

// jsonString renders a string as a JSON literal so notebook paths survive
// temp-dir separators on every platform.
func jsonString(value string) string {
	encoded, _ := json.Marshal(value)
	return string(encoded)
}
