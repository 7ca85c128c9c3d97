package nbexportpdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goliatone/go-nbexport/nbexport"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFValidator vets backend output with pdfcpu. A document that fails
// structural validation or has fewer than MinPages pages counts as a backend
// failure, so the engine falls through to the next backend. Non-PDF formats
// pass untouched.
type PDFValidator struct {
	MinPages int
}

var _ nbexport.ResultValidator = (*PDFValidator)(nil)

// ValidateResult parses the candidate PDF and checks its page count.
func (v *PDFValidator) ValidateResult(ctx context.Context, format nbexport.Format, body []byte) error {
	_ = ctx
	if v == nil || format != nbexport.FormatPDF {
		return nil
	}

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(body), conf)
	if err != nil {
		return nbexport.NewError(nbexport.KindValidation, "pdf output failed validation", err)
	}

	minPages := v.MinPages
	if minPages <= 0 {
		minPages = 1
	}
	if pdfCtx.PageCount < minPages {
		return nbexport.NewError(nbexport.KindValidation, fmt.Sprintf("pdf has %d page(s), want at least %d", pdfCtx.PageCount, minPages), nil)
	}
	return nil
}
