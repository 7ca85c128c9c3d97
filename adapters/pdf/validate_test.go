package nbexportpdf

import (
	"context"
	"testing"

	"github.com/goliatone/go-nbexport/nbexport"
)

func TestPDFValidator_RejectsGarbage(t *testing.T) {
	validator := &PDFValidator{}

	err := validator.ValidateResult(context.Background(), nbexport.FormatPDF, []byte("%PDF-not really"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if nbexport.KindFromError(err) != nbexport.KindValidation {
		t.Fatalf("expected validation error, got %v", nbexport.KindFromError(err))
	}
}

func TestPDFValidator_IgnoresOtherFormats(t *testing.T) {
	validator := &PDFValidator{MinPages: 3}

	if err := validator.ValidateResult(context.Background(), nbexport.FormatHTML, []byte("<html>")); err != nil {
		t.Fatalf("expected non-pdf formats to pass, got %v", err)
	}
	if err := validator.ValidateResult(context.Background(), nbexport.FormatCSV, nil); err != nil {
		t.Fatalf("expected non-pdf formats to pass, got %v", err)
	}
}

func TestPDFValidator_NilReceiver(t *testing.T) {
	var validator *PDFValidator
	if err := validator.ValidateResult(context.Background(), nbexport.FormatPDF, []byte("junk")); err != nil {
		t.Fatalf("expected nil validator to pass, got %v", err)
	}
}
