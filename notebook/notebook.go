// Package notebook parses notebook documents (nbformat v4 JSON) into a
// minimal cell model suitable for rendering. It keeps only what exporters
// consume: cell kind, source text, and typed outputs.
package notebook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrUnsupportedVersion marks notebooks older than nbformat 4.
	ErrUnsupportedVersion = errors.New("unsupported notebook format version")
	// ErrTooLarge marks notebooks above the configured size cap.
	ErrTooLarge = errors.New("notebook exceeds maximum size")
)

// CellType enumerates notebook cell kinds.
type CellType string

const (
	CellMarkdown CellType = "markdown"
	CellCode     CellType = "code"
	CellRaw      CellType = "raw"
)

// Output kinds defined by the notebook format.
const (
	OutputStream        = "stream"
	OutputExecuteResult = "execute_result"
	OutputDisplayData   = "display_data"
	OutputError         = "error"
)

// Notebook is a parsed notebook document.
type Notebook struct {
	Format      int      `json:"nbformat"`
	FormatMinor int      `json:"nbformat_minor"`
	Metadata    Metadata `json:"metadata"`
	Cells       []Cell   `json:"cells"`
}

// Metadata carries the notebook-level fields exporters care about.
type Metadata struct {
	Kernelspec   Kernelspec   `json:"kernelspec"`
	LanguageInfo LanguageInfo `json:"language_info"`
	Title        string       `json:"title"`
}

// Kernelspec identifies the kernel the notebook was authored against.
type Kernelspec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
}

// LanguageInfo describes the notebook's source language.
type LanguageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Cell is a single notebook cell.
type Cell struct {
	Type           CellType        `json:"cell_type"`
	Source         MultilineString `json:"source"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	Outputs        []Output        `json:"outputs,omitempty"`
}

// Output is one result attached to a code cell.
type Output struct {
	Type           string          `json:"output_type"`
	Name           string          `json:"name,omitempty"`
	Text           MultilineString `json:"text,omitempty"`
	Data           MimeBundle      `json:"data,omitempty"`
	ExecutionCount *int            `json:"execution_count,omitempty"`
	EName          string          `json:"ename,omitempty"`
	EValue         string          `json:"evalue,omitempty"`
	Traceback      []string        `json:"traceback,omitempty"`
}

// MimeBundle maps MIME types onto their payloads.
type MimeBundle map[string]MultilineString

// MultilineString accepts both encodings the notebook format allows for
// source and text fields: a plain string or a list of line fragments.
type MultilineString string

func (m *MultilineString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*m = ""
		return nil
	}

	var single string
	if err := json.Unmarshal(trimmed, &single); err == nil {
		*m = MultilineString(single)
		return nil
	}

	var lines []string
	if err := json.Unmarshal(trimmed, &lines); err == nil {
		*m = MultilineString(strings.Join(lines, ""))
		return nil
	}

	// Some bundles carry structured payloads (application/json); keep the
	// raw JSON text rather than failing the whole document.
	*m = MultilineString(trimmed)
	return nil
}

func (m MultilineString) String() string { return string(m) }

// Parse decodes a notebook document from r.
func Parse(r io.Reader) (*Notebook, error) {
	var nb Notebook
	dec := json.NewDecoder(r)
	if err := dec.Decode(&nb); err != nil {
		return nil, fmt.Errorf("decode notebook: %w", err)
	}
	if nb.Format != 0 && nb.Format < 4 {
		return nil, fmt.Errorf("%w: nbformat %d", ErrUnsupportedVersion, nb.Format)
	}
	return &nb, nil
}

// ParseBytes decodes a notebook document from raw JSON.
func ParseBytes(data []byte) (*Notebook, error) {
	return Parse(bytes.NewReader(data))
}

// Language returns the notebook source language, defaulting to python when
// the metadata does not say.
func (n *Notebook) Language() string {
	if n == nil {
		return "python"
	}
	if lang := n.Metadata.Kernelspec.Language; lang != "" {
		return lang
	}
	if lang := n.Metadata.LanguageInfo.Name; lang != "" {
		return lang
	}
	return "python"
}

// Title returns the notebook-declared title, if any.
func (n *Notebook) Title() string {
	if n == nil {
		return ""
	}
	return n.Metadata.Title
}

// CodeCells counts executable cells.
func (n *Notebook) CodeCells() int {
	if n == nil {
		return 0
	}
	count := 0
	for _, cell := range n.Cells {
		if cell.Type == CellCode {
			count++
		}
	}
	return count
}

// PlainText returns the best textual form of an output: explicit text for
// streams and errors, the text/plain bundle entry otherwise.
func (o Output) PlainText() string {
	if o.Type == OutputError {
		if o.EName != "" || o.EValue != "" {
			return strings.TrimSpace(o.EName + ": " + o.EValue)
		}
	}
	if o.Text != "" {
		return string(o.Text)
	}
	if data, ok := o.Data["text/plain"]; ok {
		return string(data)
	}
	return ""
}

// HTML returns the raw HTML payload of the output, when present.
func (o Output) HTML() (string, bool) {
	data, ok := o.Data["text/html"]
	if !ok || data == "" {
		return "", false
	}
	return string(data), true
}

// ImagePNG returns the base64 PNG payload of the output, when present.
func (o Output) ImagePNG() (string, bool) {
	data, ok := o.Data["image/png"]
	if !ok || data == "" {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
