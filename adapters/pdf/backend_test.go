package nbexportpdf

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-nbexport/nbexport"
	"github.com/goliatone/go-nbexport/notebook"
)

const backendTestNotebook = `{
  "nbformat": 4,
  "nbformat_minor": 5,
  "metadata": {"kernelspec": {"name": "python3", "language": "python"}},
  "cells": [
    {"cell_type": "markdown", "metadata": {}, "source": ["# Report\n", "Body text."]},
    {"cell_type": "code", "execution_count": 1, "metadata": {}, "source": ["print(\"ok\")"], "outputs": [
      {"output_type": "stream", "name": "stdout", "text": ["ok\n"]}
    ]}
  ]
}`

type stubMarkup struct {
	html string
	err  error
}

func (m stubMarkup) RenderHTML(ctx context.Context, in nbexport.RenderInput) ([]byte, error) {
	_ = ctx
	_ = in
	if m.err != nil {
		return nil, m.err
	}
	return []byte(m.html), nil
}

func backendInput(t *testing.T) nbexport.RenderInput {
	t.Helper()

	nb, err := notebook.ParseBytes([]byte(backendTestNotebook))
	if err != nil {
		t.Fatalf("parse notebook: %v", err)
	}
	return nbexport.RenderInput{
		Document:  nbexport.Document{Path: "weekly_report.ipynb", Fingerprint: "f1"},
		Notebook:  nb,
		Resources: nbexport.BuildResources("weekly_report.ipynb"),
		Theme:     nbexport.ThemeLight,
	}
}

func TestBackendIdentities(t *testing.T) {
	tests := []struct {
		backend nbexport.Backend
		name    string
		bit     nbexport.Capability
	}{
		{backend: NewTeXBackend(), name: "tex", bit: nbexport.CapTeX},
		{backend: NewChromiumBackend(), name: "webpdf", bit: nbexport.CapWebPDF},
		{backend: NewWKHTMLTOPDFBackend(), name: "qtpdf", bit: nbexport.CapQtPDF},
	}

	for _, tc := range tests {
		if got := tc.backend.Name(); got != tc.name {
			t.Fatalf("expected name %q, got %q", tc.name, got)
		}
		if got := tc.backend.Capability(); got != tc.bit {
			t.Fatalf("backend %q: expected capability %v, got %v", tc.name, tc.bit, got)
		}
	}
}

func TestTeXBackend_MissingToolchain(t *testing.T) {
	backend := NewTeXBackend()
	backend.Command = "nbexport-missing-xelatex"

	_, err := backend.Render(context.Background(), backendInput(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if note := nbexport.DiagnosticNote(err); note != "nbexport-missing-xelatex is not installed" {
		t.Fatalf("unexpected diagnostic note: %q", note)
	}
}

func TestTeXBackend_RequiresRenderer(t *testing.T) {
	backend := &TeXBackend{}
	_, err := backend.Render(context.Background(), backendInput(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if nbexport.KindFromError(err) != nbexport.KindValidation {
		t.Fatalf("expected validation error, got %v", nbexport.KindFromError(err))
	}
}

func TestWKHTMLTOPDFBackend_MissingBinary(t *testing.T) {
	backend := &WKHTMLTOPDFBackend{
		Markup:  stubMarkup{html: "<html><body>ok</body></html>"},
		Command: "nbexport-missing-wkhtmltopdf",
	}

	_, err := backend.Render(context.Background(), backendInput(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if note := nbexport.DiagnosticNote(err); note != "nbexport-missing-wkhtmltopdf is not installed" {
		t.Fatalf("unexpected diagnostic note: %q", note)
	}
}

func TestWKHTMLTOPDFBackend_MaxHTMLBytes(t *testing.T) {
	backend := &WKHTMLTOPDFBackend{
		Markup:       stubMarkup{html: strings.Repeat("x", 64)},
		MaxHTMLBytes: 16,
	}

	_, err := backend.Render(context.Background(), backendInput(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if nbexport.KindFromError(err) != nbexport.KindValidation {
		t.Fatalf("expected validation error, got %v", nbexport.KindFromError(err))
	}
}

func TestChromiumBackend_RequiresMarkup(t *testing.T) {
	backend := &ChromiumBackend{}
	_, err := backend.Render(context.Background(), backendInput(t))
	if err == nil {
		t.Fatalf("expected error")
	}
	if nbexport.KindFromError(err) != nbexport.KindValidation {
		t.Fatalf("expected validation error, got %v", nbexport.KindFromError(err))
	}
}

func TestTexFailureMessage(t *testing.T) {
	transcript := strings.Join([]string{
		"This is XeTeX, Version 3.141592653",
		"(./notebook.tex",
		"! LaTeX Error: File `fancyvrb.sty' not found.",
		"Type X to quit or <RETURN> to proceed,",
		"! Emergency stop.",
		"No pages of output.",
	}, "\n")

	message := texFailureMessage([]byte(transcript))
	if !strings.Contains(message, "File `fancyvrb.sty' not found") {
		t.Fatalf("expected missing file line, got %q", message)
	}
	if !strings.Contains(message, "Emergency stop") {
		t.Fatalf("expected emergency stop line, got %q", message)
	}

	err := nbexport.NewError(nbexport.KindInternal, message, nil)
	if note := nbexport.DiagnosticNote(err); note != "missing LaTeX file fancyvrb.sty" {
		t.Fatalf("unexpected diagnostic note: %q", note)
	}
}

func TestTexFailureMessage_Empty(t *testing.T) {
	if got := texFailureMessage([]byte("all fine\nno complaints\n")); got != "" {
		t.Fatalf("expected empty message, got %q", got)
	}
}
