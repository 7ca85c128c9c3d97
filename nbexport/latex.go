package nbexport

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"

	"github.com/goliatone/go-nbexport/notebook"
)

const latexTemplateName = "notebook.tex.tmpl"

// latexEscaper rewrites TeX-active characters. A single-pass Replacer keeps
// the braces introduced by \textbackslash{} from being re-escaped.
var latexEscaper = strings.NewReplacer(
	"\\", `\textbackslash{}`,
	"{", `\{`,
	"}", `\}`,
	"$", `\$`,
	"&", `\&`,
	"#", `\#`,
	"%", `\%`,
	"_", `\_`,
	"~", `\textasciitilde{}`,
	"^", `\textasciicircum{}`,
)

var (
	inlineCodeRE = regexp.MustCompile("`([^`]+)`")
	boldRE       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	emphasisRE   = regexp.MustCompile(`\*([^*]+)\*`)
)

// LaTeXRenderer turns a parsed notebook into a compilable LaTeX document.
// The output is source text only; running a TeX engine over it is the PDF
// backend's job.
type LaTeXRenderer struct {
	// TemplateName selects the embedded document template.
	TemplateName string

	once    sync.Once
	tpl     *template.Template
	initErr error
}

type latexDocument struct {
	Title  string
	Date   string
	Blocks []latexBlock
}

type latexBlock struct {
	Kind string
	Text string
}

// NewLaTeXRenderer creates a renderer using the embedded document template.
func NewLaTeXRenderer() *LaTeXRenderer {
	return &LaTeXRenderer{TemplateName: latexTemplateName}
}

func (r *LaTeXRenderer) init() {
	r.once.Do(func() {
		name := r.TemplateName
		if name == "" {
			name = latexTemplateName
		}
		source, err := fs.ReadFile(LaTeXTemplatesFS(), name)
		if err != nil {
			r.initErr = fmt.Errorf("reading embedded latex template %q: %w", name, err)
			return
		}
		// TeX relies on braces, so the template uses shifted delimiters.
		r.tpl, r.initErr = template.New(name).Delims("<<", ">>").Parse(string(source))
	})
}

// RenderLaTeX produces the .tex source for the notebook.
func (r *LaTeXRenderer) RenderLaTeX(ctx context.Context, in RenderInput) ([]byte, error) {
	r.init()
	if r.initErr != nil {
		return nil, NewError(KindInternal, "preparing latex renderer", r.initErr)
	}
	if in.Notebook == nil {
		return nil, NewError(KindValidation, "render input requires a parsed notebook", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, r.documentFor(in)); err != nil {
		return nil, NewError(KindInternal, "executing latex template", err)
	}
	return buf.Bytes(), nil
}

func (r *LaTeXRenderer) documentFor(in RenderInput) latexDocument {
	doc := latexDocument{
		Title: latexEscaper.Replace(in.Resources.Title),
		Date:  latexEscaper.Replace(in.Resources.Date),
	}

	for _, cell := range in.Notebook.Cells {
		switch cell.Type {
		case notebook.CellMarkdown:
			doc.Blocks = append(doc.Blocks, latexBlock{
				Kind: "prose",
				Text: markdownToLaTeX(cell.Source.String()),
			})
		case notebook.CellCode:
			if source := strings.TrimRight(cell.Source.String(), "\n"); source != "" {
				doc.Blocks = append(doc.Blocks, latexBlock{Kind: "code", Text: verbatimSafe(source)})
			}
			for _, out := range cell.Outputs {
				if block, ok := latexOutputBlock(out); ok {
					doc.Blocks = append(doc.Blocks, block)
				}
			}
		}
	}
	return doc
}

func latexOutputBlock(out notebook.Output) (latexBlock, bool) {
	if out.Type == notebook.OutputError {
		text := strings.Join(out.Traceback, "\n")
		if text == "" {
			text = out.PlainText()
		}
		text = ansiEscapeRE.ReplaceAllString(text, "")
		if text == "" {
			return latexBlock{}, false
		}
		return latexBlock{Kind: "error", Text: verbatimSafe(text)}, true
	}

	text := strings.TrimRight(out.PlainText(), "\n")
	if text == "" {
		return latexBlock{}, false
	}
	return latexBlock{Kind: "output", Text: verbatimSafe(text)}, true
}

// verbatimSafe keeps literal text from terminating its Verbatim environment.
// A space inside the braces no longer matches the environment name, so TeX
// treats the line as ordinary verbatim content.
func verbatimSafe(text string) string {
	return strings.ReplaceAll(strings.TrimRight(text, "\n"), `\end{Verbatim}`, `\end{Verbatim }`)
}

// markdownToLaTeX covers the markdown subset notebooks lean on in practice:
// headings, flat lists, bold, emphasis, and inline code. Everything else is
// escaped and kept as prose.
func markdownToLaTeX(source string) string {
	var out strings.Builder
	inList := false

	closeList := func() {
		if inList {
			out.WriteString("\\end{itemize}\n")
			inList = false
		}
	}

	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "### "):
			closeList()
			out.WriteString("\\subsubsection*{" + inlineLaTeX(trimmed[4:]) + "}\n")
		case strings.HasPrefix(trimmed, "## "):
			closeList()
			out.WriteString("\\subsection*{" + inlineLaTeX(trimmed[3:]) + "}\n")
		case strings.HasPrefix(trimmed, "# "):
			closeList()
			out.WriteString("\\section*{" + inlineLaTeX(trimmed[2:]) + "}\n")
		case strings.HasPrefix(trimmed, "- "), strings.HasPrefix(trimmed, "* "):
			if !inList {
				out.WriteString("\\begin{itemize}\n")
				inList = true
			}
			out.WriteString("\\item " + inlineLaTeX(trimmed[2:]) + "\n")
		case trimmed == "":
			closeList()
			out.WriteString("\n")
		default:
			closeList()
			out.WriteString(inlineLaTeX(line) + "\n")
		}
	}
	closeList()
	return out.String()
}

// inlineLaTeX escapes first, then rewrites the markdown markers; backticks
// and asterisks survive escaping, so the marker patterns still match.
func inlineLaTeX(text string) string {
	escaped := latexEscaper.Replace(text)
	escaped = inlineCodeRE.ReplaceAllString(escaped, `\texttt{$1}`)
	escaped = boldRE.ReplaceAllString(escaped, `\textbf{$1}`)
	escaped = emphasisRE.ReplaceAllString(escaped, `\emph{$1}`)
	return escaped
}
