package nbexport

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"
)

// Resources is the derived, read-only metadata shared by every backend
// attempt so output framing stays consistent no matter which backend wins.
// Date is always blanked: exports must not carry a stale-looking timestamp.
type Resources struct {
	Title string
	Date  string
}

var titleReplacer = strings.NewReplacer("_", " ", "-", " ")

// BuildResources derives presentation metadata from the notebook path:
// base name with the extension stripped and separators turned into spaces.
// Pure function of the path string.
func BuildResources(path string) Resources {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return Resources{Title: titleReplacer.Replace(stem), Date: ""}
}

type filenameData struct {
	Title  string
	Slug   string
	Format string
	Date   string
}

// renderFilename builds a download filename for a rendered document. The
// pattern is a text/template over {{.Title}}, {{.Slug}}, {{.Format}} and
// {{.Date}}; empty pattern falls back to the slug.
func renderFilename(pattern string, res Resources, format Format) (string, error) {
	if pattern == "" {
		pattern = "{{.Slug}}"
	}

	data := filenameData{
		Title:  res.Title,
		Slug:   slugify(res.Title),
		Format: string(format),
		Date:   res.Date,
	}

	tmpl, err := template.New("filename").Parse(pattern)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	result := strings.TrimSpace(buf.String())
	if result == "" {
		return "", fmt.Errorf("empty filename")
	}

	ext := string(format)
	if !strings.HasSuffix(strings.ToLower(result), "."+ext) {
		result = result + "." + ext
	}
	return result, nil
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "notebook"
	}
	return out
}
