package nbexport

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-nbexport/notebook"
)

const richNotebookJSON = `{
  "nbformat": 4,
  "nbformat_minor": 5,
  "metadata": {"kernelspec": {"name": "python3", "language": "python"}},
  "cells": [
    {"cell_type": "markdown", "source": ["# Overview\n", "Some *emphasis* and <script>alert(1)</script> inline html.\n"]},
    {"cell_type": "code", "source": "import pandas as pd\nprint('ready')", "execution_count": 2, "outputs": [
      {"output_type": "stream", "name": "stdout", "text": ["ready\n"]},
      {"output_type": "stream", "name": "stderr", "text": "warning: deprecated\n"},
      {"output_type": "execute_result", "execution_count": 2, "data": {
        "text/html": ["<table class=\"dataframe\"><tr><td>1</td></tr></table><script>steal()</script>"],
        "text/plain": ["   a\n0  1"]
      }},
      {"output_type": "display_data", "data": {"image/png": "aGVsbG8="}},
      {"output_type": "error", "ename": "ValueError", "evalue": "bad input", "traceback": ["\u001b[0;31mValueError\u001b[0m: bad input"]}
    ]},
    {"cell_type": "raw", "source": "raw passthrough ignored"}
  ]
}`

func renderRichNotebook(t *testing.T, theme string) string {
	t.Helper()
	nb, err := notebook.ParseBytes([]byte(richNotebookJSON))
	if err != nil {
		t.Fatalf("parse notebook: %v", err)
	}

	renderer := NewHTMLRenderer()
	body, err := renderer.RenderHTML(context.Background(), RenderInput{
		Document:  Document{Path: "reports/model_eval.ipynb", Fingerprint: "v1"},
		Notebook:  nb,
		Resources: BuildResources("reports/model_eval.ipynb"),
		Theme:     theme,
	})
	if err != nil {
		t.Fatalf("render html: %v", err)
	}
	return string(body)
}

func TestHTMLRendererPage(t *testing.T) {
	page := renderRichNotebook(t, "light")

	if !strings.Contains(page, `data-theme="light"`) {
		t.Fatalf("expected light theme attribute")
	}
	if !strings.Contains(page, "<title>model eval</title>") {
		t.Fatalf("expected derived title, got page: %.300s", page)
	}
	if !strings.Contains(page, "Overview") {
		t.Fatalf("expected markdown heading in output")
	}
	if !strings.Contains(page, "In [2]:") {
		t.Fatalf("expected execution prompt")
	}
}

func TestHTMLRendererSanitizesNotebookHTML(t *testing.T) {
	page := renderRichNotebook(t, "light")

	if strings.Contains(page, "<script>") {
		t.Fatalf("script tags must be stripped")
	}
	if strings.Contains(page, "alert(1)") || strings.Contains(page, "steal()") {
		t.Fatalf("script bodies must be stripped")
	}
	if !strings.Contains(page, `class="dataframe"`) {
		t.Fatalf("table classes must survive sanitization")
	}
}

func TestHTMLRendererOutputs(t *testing.T) {
	page := renderRichNotebook(t, "light")

	if !strings.Contains(page, "nb-stderr") {
		t.Fatalf("expected stderr stream class")
	}
	if !strings.Contains(page, "data:image/png;base64,aGVsbG8=") {
		t.Fatalf("expected inline png data uri")
	}
	if !strings.Contains(page, "ValueError") {
		t.Fatalf("expected error output")
	}
	if strings.Contains(page, "\x1b[0;31m") {
		t.Fatalf("ansi escapes must be stripped from tracebacks")
	}
	if strings.Contains(page, "raw passthrough ignored") {
		t.Fatalf("raw cells must not render")
	}
}

func TestHTMLRendererThemeSwitchesHighlightStyle(t *testing.T) {
	light := renderRichNotebook(t, "light")
	dark := renderRichNotebook(t, "dark")

	if !strings.Contains(dark, `data-theme="dark"`) {
		t.Fatalf("expected dark theme attribute")
	}
	if light == dark {
		t.Fatalf("themes must produce different pages")
	}
}

func TestHTMLRendererRequiresNotebook(t *testing.T) {
	renderer := NewHTMLRenderer()
	_, err := renderer.RenderHTML(context.Background(), RenderInput{})
	if KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHighlightFallsBackOnUnknownLanguage(t *testing.T) {
	var sb strings.Builder
	if err := highlight(&sb, "SELECT 1", "made-up-language", "github"); err != nil {
		t.Fatalf("highlight: %v", err)
	}
	if sb.Len() == 0 {
		t.Fatalf("expected highlighted output")
	}
}
