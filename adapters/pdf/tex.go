package nbexportpdf

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-nbexport/nbexport"
)

const (
	texJobName         = "notebook"
	maxTeXMessageLines = 3
)

// TeXBackend converts notebooks to PDF through a LaTeX toolchain. The
// intermediate .tex source is compiled in a scratch directory that is
// removed after every attempt. LaTeX output is print-oriented and ignores
// the requested theme, so the result carries no applied theme.
type TeXBackend struct {
	LaTeX   *nbexport.LaTeXRenderer
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
}

var _ nbexport.Backend = (*TeXBackend)(nil)

// NewTeXBackend returns a tex backend compiling with xelatex.
func NewTeXBackend() *TeXBackend {
	return &TeXBackend{LaTeX: nbexport.NewLaTeXRenderer()}
}

func (b *TeXBackend) Name() string { return "tex" }

func (b *TeXBackend) Capability() nbexport.Capability { return nbexport.CapTeX }

// Render compiles the notebook's LaTeX source and returns the produced PDF.
func (b *TeXBackend) Render(ctx context.Context, in nbexport.RenderInput) (nbexport.BackendResult, error) {
	if b == nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "tex backend is nil", nil)
	}
	if b.LaTeX == nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindValidation, "tex backend requires a latex renderer", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	source, err := b.LaTeX.RenderLaTeX(ctx, in)
	if err != nil {
		return nbexport.BackendResult{}, err
	}

	scratch, err := os.MkdirTemp("", "nbexport-tex-")
	if err != nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "creating tex scratch dir", err)
	}
	defer os.RemoveAll(scratch)

	texPath := filepath.Join(scratch, texJobName+".tex")
	if err := os.WriteFile(texPath, source, 0o600); err != nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "writing tex source", err)
	}

	cmdPath := strings.TrimSpace(b.Command)
	if cmdPath == "" {
		cmdPath = "xelatex"
	}
	cmdCtx := ctx
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}

	args := []string{"-interaction=nonstopmode", "-halt-on-error", "-output-directory", scratch}
	args = append(args, b.Args...)
	args = append(args, texPath)
	cmd := exec.CommandContext(cmdCtx, cmdPath, args...)
	if len(b.Env) > 0 {
		cmd.Env = append(os.Environ(), b.Env...)
	}

	// TeX engines report errors on stdout, not stderr.
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := texFailureMessage(stdout.Bytes())
		if message == "" {
			message = strings.TrimSpace(stderr.String())
		}
		if message == "" {
			message = fmt.Sprintf("%s failed", cmdPath)
		}
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, message, err)
	}

	pdf, err := os.ReadFile(filepath.Join(scratch, texJobName+".pdf"))
	if err != nil {
		return nbexport.BackendResult{}, nbexport.NewError(nbexport.KindInternal, "tex run produced no pdf", err)
	}
	return nbexport.BackendResult{Body: pdf}, nil
}

// texFailureMessage pulls the salient lines out of a TeX transcript. Errors
// arrive on lines starting with "!" and missing inputs as "File `x' not
// found", which downstream diagnostics recognize.
func texFailureMessage(transcript []byte) string {
	var picked []string
	scanner := bufio.NewScanner(bytes.NewReader(transcript))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "!") || strings.Contains(line, "not found") {
			picked = append(picked, line)
		}
		if len(picked) == maxTeXMessageLines {
			break
		}
	}
	return strings.Join(picked, "; ")
}
