package nbexportpdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/goliatone/go-nbexport/nbexport"
)

// DefaultMaxHTMLBytes guards in-memory HTML buffering before PDF conversion.
const DefaultMaxHTMLBytes int64 = 8 * 1024 * 1024

// WKHTMLTOPDFBackend converts themed notebook HTML to PDF by invoking
// wkhtmltopdf with stdin/stdout piping. It carries the qtpdf capability bit,
// which the default mask excludes.
type WKHTMLTOPDFBackend struct {
	Markup       nbexport.MarkupRenderer
	Command      string
	Args         []string
	Env          []string
	Timeout      time.Duration
	MaxHTMLBytes int64
}

var _ nbexport.Backend = (*WKHTMLTOPDFBackend)(nil)

// NewWKHTMLTOPDFBackend returns a qtpdf backend with the default markup
// renderer.
func NewWKHTMLTOPDFBackend() *WKHTMLTOPDFBackend {
	return &WKHTMLTOPDFBackend{Markup: nbexport.NewHTMLRenderer()}
}

func (b *WKHTMLTOPDFBackend) Name() string { return "qtpdf" }

func (b *WKHTMLTOPDFBackend) Capability() nbexport.Capability { return nbexport.CapQtPDF }

// Render executes wkhtmltopdf using stdin/stdout for HTML/PDF.
func (b *WKHTMLTOPDFBackend) Render(ctx context.Context, in nbexport.RenderInput) (nbexport.BackendResult, error) {
	if b == nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "wkhtmltopdf backend is nil", nil)
	}
	if b.Markup == nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindValidation, "wkhtmltopdf backend requires a markup renderer", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	htmlBody, err := b.Markup.RenderHTML(ctx, in)
	if err != nil {
		return nbexport.BackendResult{}, err
	}
	if err := checkHTMLSize(htmlBody, b.MaxHTMLBytes); err != nil {
		return nbexport.BackendResult{}, err
	}

	cmdPath := strings.TrimSpace(b.Command)
	if cmdPath == "" {
		cmdPath = "wkhtmltopdf"
	}
	cmdCtx := ctx
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	args := append([]string{}, b.Args...)
	args = append(args, "-", "-")
	cmd := exec.CommandContext(cmdCtx, cmdPath, args...)
	if len(b.Env) > 0 {
		cmd.Env = append(os.Environ(), b.Env...)
	}
	cmd.Stdin = bytes.NewReader(htmlBody)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = fmt.Sprintf("%s failed", cmdPath)
		}
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, message, err)
	}
	return nbexport.BackendResult{Body: stdout.Bytes(), AppliedTheme: in.Theme}, nil
}

func checkHTMLSize(body []byte, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = DefaultMaxHTMLBytes
	}
	if int64(len(body)) > maxSize {
		return nbexport.NewError(nbexport.KindValidation, "html input exceeds max bytes", nil)
	}
	return nil
}
