// Package nbexportpdf provides the PDF document backends for go-nbexport.
//
// Three backends cover the fallback chain: TeXBackend drives a LaTeX
// toolchain (xelatex by default), ChromiumBackend prints themed notebook
// HTML through a shared headless Chromium instance, and WKHTMLTOPDFBackend
// shells out to wkhtmltopdf. PDFValidator optionally vets backend output
// with pdfcpu before the engine accepts it.
package nbexportpdf
