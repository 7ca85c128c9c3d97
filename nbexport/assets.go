package nbexport

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed templates/html/*.html
var embeddedHTMLTemplates embed.FS

//go:embed templates/latex/*.tmpl
var embeddedLaTeXTemplates embed.FS

// HTMLTemplatesFS exposes the embedded HTML page templates.
func HTMLTemplatesFS() fs.FS {
	sub, err := fs.Sub(embeddedHTMLTemplates, "templates/html")
	if err != nil {
		// This should never happen because the directory is embedded at build time.
		panic(fmt.Errorf("nbexport: failed to prepare embedded html templates: %w", err))
	}
	return sub
}

// LaTeXTemplatesFS exposes the embedded LaTeX document templates.
func LaTeXTemplatesFS() fs.FS {
	sub, err := fs.Sub(embeddedLaTeXTemplates, "templates/latex")
	if err != nil {
		// This should never happen because the directory is embedded at build time.
		panic(fmt.Errorf("nbexport: failed to prepare embedded latex templates: %w", err))
	}
	return sub
}
