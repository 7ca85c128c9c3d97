package nbexport

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"regexp"
	"strings"
)

var (
	latexMissingRE = regexp.MustCompile("File `([^']+)' not found")
	quotedTokenRE  = regexp.MustCompile("\"([^\"]+)\"|'([^']+)'|`([^`']+)'")
)

// DiagnosticNote derives a short operator-facing hint from a backend failure.
// Only well-known "missing dependency" error shapes produce a note; anything
// else yields an empty string and the attempt is still recorded as a failure.
func DiagnosticNote(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, exec.ErrNotFound) {
		if tok := quotedToken(err.Error()); tok != "" {
			return fmt.Sprintf("%s is not installed", tok)
		}
		return "required executable is not installed"
	}

	msg := err.Error()
	if m := latexMissingRE.FindStringSubmatch(msg); m != nil {
		return fmt.Sprintf("missing LaTeX file %s", m[1])
	}

	if errors.Is(err, fs.ErrNotExist) {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && pathErr.Path != "" {
			return fmt.Sprintf("%s not found", pathErr.Path)
		}
	}
	if errors.Is(err, fs.ErrNotExist) || containsNotFound(msg) {
		if tok := quotedToken(msg); tok != "" {
			return fmt.Sprintf("%s not found", tok)
		}
	}

	return ""
}

func containsNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "not found") || strings.Contains(lower, "no such file")
}

func quotedToken(msg string) string {
	m := quotedTokenRE.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	for _, group := range m[1:] {
		if group != "" {
			return group
		}
	}
	return ""
}
