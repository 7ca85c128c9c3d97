package nbexport

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"io/fs"
	"regexp"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/goliatone/go-nbexport/notebook"
)

const (
	pageTemplateName = "page.html"

	defaultLightStyle = "github"
	defaultDarkStyle  = "monokai"
)

// ansiEscapeRE matches the color sequences kernels embed in tracebacks.
var ansiEscapeRE = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

// HTMLRenderer converts a parsed notebook into a standalone themed HTML
// page. Markdown cells go through goldmark, code cells through chroma, and
// every notebook-provided HTML fragment is sanitized before it reaches the
// page. The same renderer feeds both the markup entry point and the
// HTML-to-PDF backends.
type HTMLRenderer struct {
	// Policy sanitizes HTML that originates in the notebook: rendered
	// markdown and rich text/html outputs. Nil falls back to
	// NotebookSanitizer.
	Policy *bluemonday.Policy

	// LightStyle and DarkStyle name the chroma styles used per theme.
	LightStyle string
	DarkStyle  string

	once     sync.Once
	markdown goldmark.Markdown
	page     *pongo2.Template
	initErr  error
}

var _ MarkupRenderer = (*HTMLRenderer)(nil)

// NewHTMLRenderer creates a renderer with the default sanitizer and styles.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		Policy:     NotebookSanitizer(),
		LightStyle: defaultLightStyle,
		DarkStyle:  defaultDarkStyle,
	}
}

// NotebookSanitizer returns the HTML policy applied to notebook content. It
// extends the UGC baseline with the bits rich kernel output relies on:
// tables, class attributes, and data-URI images.
func NotebookSanitizer() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowTables()
	policy.AllowAttrs("class").Globally()
	policy.AllowDataURIImages()
	return policy
}

func (r *HTMLRenderer) init() {
	r.once.Do(func() {
		r.markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
		)

		source, err := fs.ReadFile(HTMLTemplatesFS(), pageTemplateName)
		if err != nil {
			r.initErr = fmt.Errorf("reading embedded page template: %w", err)
			return
		}
		r.page, r.initErr = pongo2.FromString(string(source))
	})
}

// RenderHTML renders the notebook into a single self-contained HTML page.
func (r *HTMLRenderer) RenderHTML(ctx context.Context, in RenderInput) ([]byte, error) {
	r.init()
	if r.initErr != nil {
		return nil, NewError(KindInternal, "preparing html renderer", r.initErr)
	}
	if in.Notebook == nil {
		return nil, NewError(KindValidation, "render input requires a parsed notebook", nil)
	}

	theme := NormalizeTheme(in.Theme)
	styleName := r.styleFor(theme)
	lang := in.Notebook.Language()

	var body strings.Builder
	for i, cell := range in.Notebook.Cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch cell.Type {
		case notebook.CellMarkdown:
			if err := r.writeMarkdownCell(&body, cell); err != nil {
				return nil, NewError(KindInternal, fmt.Sprintf("rendering markdown cell %d", i), err)
			}
		case notebook.CellCode:
			if err := r.writeCodeCell(&body, cell, lang, styleName); err != nil {
				return nil, NewError(KindInternal, fmt.Sprintf("rendering code cell %d", i), err)
			}
		}
	}

	css, err := highlightCSS(styleName)
	if err != nil {
		return nil, NewError(KindInternal, "generating highlight styles", err)
	}

	out, err := r.page.Execute(pongo2.Context{
		"title":         in.Resources.Title,
		"date":          in.Resources.Date,
		"theme":         theme,
		"body":          body.String(),
		"highlight_css": css,
	})
	if err != nil {
		return nil, NewError(KindInternal, "executing page template", err)
	}
	return []byte(out), nil
}

func (r *HTMLRenderer) styleFor(theme string) string {
	if theme == ThemeDark {
		if r.DarkStyle != "" {
			return r.DarkStyle
		}
		return defaultDarkStyle
	}
	if r.LightStyle != "" {
		return r.LightStyle
	}
	return defaultLightStyle
}

func (r *HTMLRenderer) sanitize(fragment string) string {
	policy := r.Policy
	if policy == nil {
		policy = NotebookSanitizer()
	}
	return policy.Sanitize(fragment)
}

func (r *HTMLRenderer) writeMarkdownCell(w *strings.Builder, cell notebook.Cell) error {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(cell.Source.String()), &buf); err != nil {
		return err
	}
	w.WriteString(`<section class="nb-cell nb-markdown">`)
	w.WriteString(r.sanitize(buf.String()))
	w.WriteString("</section>\n")
	return nil
}

func (r *HTMLRenderer) writeCodeCell(w *strings.Builder, cell notebook.Cell, lang, styleName string) error {
	w.WriteString(`<section class="nb-cell nb-code">`)
	w.WriteString(`<div class="nb-input">`)
	w.WriteString(fmt.Sprintf(`<span class="nb-prompt">%s</span>`, html.EscapeString(prompt("In", cell.ExecutionCount))))
	w.WriteString(`<div class="nb-source">`)
	if err := highlight(w, cell.Source.String(), lang, styleName); err != nil {
		return err
	}
	w.WriteString("</div></div>\n")

	for _, out := range cell.Outputs {
		r.writeOutput(w, out)
	}
	w.WriteString("</section>\n")
	return nil
}

func (r *HTMLRenderer) writeOutput(w *strings.Builder, out notebook.Output) {
	switch out.Type {
	case notebook.OutputStream:
		class := "nb-output nb-stream"
		if out.Name == "stderr" {
			class += " nb-stderr"
		}
		writePre(w, class, out.Text.String())
	case notebook.OutputError:
		text := strings.Join(out.Traceback, "\n")
		if text == "" {
			text = out.PlainText()
		}
		writePre(w, "nb-output nb-error", ansiEscapeRE.ReplaceAllString(text, ""))
	case notebook.OutputExecuteResult, notebook.OutputDisplayData:
		if fragment, ok := out.HTML(); ok {
			w.WriteString(`<div class="nb-output nb-rich">`)
			w.WriteString(r.sanitize(fragment))
			w.WriteString("</div>\n")
			return
		}
		if png, ok := out.ImagePNG(); ok {
			w.WriteString(`<div class="nb-output nb-image">`)
			w.WriteString(`<img alt="output" src="data:image/png;base64,`)
			w.WriteString(strings.Map(dropSpace, png))
			w.WriteString(`"/></div>` + "\n")
			return
		}
		if text := out.PlainText(); text != "" {
			writePre(w, "nb-output nb-result", text)
		}
	}
}

func writePre(w *strings.Builder, class, text string) {
	if text == "" {
		return
	}
	w.WriteString(`<pre class="` + class + `">`)
	w.WriteString(html.EscapeString(strings.TrimRight(text, "\n")))
	w.WriteString("</pre>\n")
}

func prompt(label string, count *int) string {
	if count == nil {
		return label + " [ ]:"
	}
	return fmt.Sprintf("%s [%d]:", label, *count)
}

func dropSpace(r rune) rune {
	switch r {
	case ' ', '\n', '\r', '\t':
		return -1
	}
	return r
}

// highlight writes the chroma-highlighted source using CSS classes; the
// matching stylesheet comes from highlightCSS so both must agree on class
// output.
func highlight(w io.Writer, source, lang, styleName string) error {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return err
	}
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	return formatter.Format(w, styleOrFallback(styleName), iterator)
}

func highlightCSS(styleName string) (string, error) {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, styleOrFallback(styleName)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func styleOrFallback(name string) *chroma.Style {
	if style := styles.Get(name); style != nil {
		return style
	}
	return styles.Fallback
}
