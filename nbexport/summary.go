package nbexport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/goliatone/go-nbexport/notebook"
)

const (
	excelMaxRows     = 1048576
	defaultSheetName = "Summary"
	previewRunes     = 80
)

// SummaryOptions tunes the tabular digest renderers.
type SummaryOptions struct {
	// IncludeHeader emits a header row before the cell rows.
	IncludeHeader bool
	// SheetName overrides the XLSX sheet name.
	SheetName string
	// Delimiter overrides the CSV field separator.
	Delimiter rune
	// MaxBytes caps the serialized output size; zero means unlimited.
	MaxBytes int64
}

// SummaryStats reports what a summary render produced.
type SummaryStats struct {
	Rows  int64
	Bytes int64
}

// SummaryRenderer writes a tabular digest of a notebook: one row per cell
// with its kind, size, execution count, and a source preview. Summaries are
// a reporting surface; they never participate in the document fallback
// chain.
type SummaryRenderer interface {
	RenderSummary(ctx context.Context, in RenderInput, w io.Writer, opts SummaryOptions) (SummaryStats, error)
}

var summaryColumns = []string{"Cell", "Type", "Lines", "Execution", "Outputs", "Preview"}

type summaryRow struct {
	Index     int
	Type      string
	Lines     int
	Execution *int
	Outputs   int
	Preview   string
}

func buildSummaryRows(nb *notebook.Notebook) []summaryRow {
	rows := make([]summaryRow, 0, len(nb.Cells))
	for i, cell := range nb.Cells {
		rows = append(rows, summaryRow{
			Index:     i + 1,
			Type:      string(cell.Type),
			Lines:     countLines(cell.Source.String()),
			Execution: cell.ExecutionCount,
			Outputs:   len(cell.Outputs),
			Preview:   previewLine(cell.Source.String()),
		})
	}
	return rows
}

func countLines(source string) int {
	if source == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(source, "\n"), "\n") + 1
}

func previewLine(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if len(runes) > previewRunes {
			return string(runes[:previewRunes]) + "..."
		}
		return trimmed
	}
	return ""
}

// XLSXSummaryRenderer renders the digest as an XLSX workbook.
type XLSXSummaryRenderer struct{}

var _ SummaryRenderer = XLSXSummaryRenderer{}

// RenderSummary streams cell rows into a single-sheet workbook.
func (XLSXSummaryRenderer) RenderSummary(ctx context.Context, in RenderInput, w io.Writer, opts SummaryOptions) (SummaryStats, error) {
	if in.Notebook == nil {
		return SummaryStats{}, NewError(KindValidation, "summary requires a parsed notebook", nil)
	}

	file := excelize.NewFile()
	defer func() {
		_ = file.Close()
	}()

	sheetName := opts.SheetName
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	defaultSheet := file.GetSheetName(0)
	if defaultSheet != sheetName {
		file.SetSheetName(defaultSheet, sheetName)
	}

	stream, err := file.NewStreamWriter(sheetName)
	if err != nil {
		return SummaryStats{}, err
	}

	headerID, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return SummaryStats{}, err
	}

	rowIndex := 1
	if opts.IncludeHeader {
		headers := make([]interface{}, len(summaryColumns))
		for i, label := range summaryColumns {
			headers[i] = excelize.Cell{StyleID: headerID, Value: label}
		}
		if err := stream.SetRow(fmt.Sprintf("A%d", rowIndex), headers); err != nil {
			return SummaryStats{}, err
		}
		rowIndex++
	}

	stats := SummaryStats{}
	for _, row := range buildSummaryRows(in.Notebook) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if rowIndex > excelMaxRows {
			return stats, NewError(KindValidation, "xlsx row limit exceeded", nil)
		}

		execution := interface{}("")
		if row.Execution != nil {
			execution = *row.Execution
		}
		cells := []interface{}{row.Index, row.Type, row.Lines, execution, row.Outputs, row.Preview}
		if err := stream.SetRow(fmt.Sprintf("A%d", rowIndex), cells); err != nil {
			return stats, err
		}
		stats.Rows++
		rowIndex++
	}

	if err := stream.Flush(); err != nil {
		return stats, err
	}

	lw := newLimitedWriter(w, opts.MaxBytes)
	if _, err := file.WriteTo(lw); err != nil {
		return stats, err
	}
	stats.Bytes = lw.count
	return stats, nil
}

// CSVSummaryRenderer renders the digest as CSV.
type CSVSummaryRenderer struct{}

var _ SummaryRenderer = CSVSummaryRenderer{}

// RenderSummary writes cell rows as CSV records.
func (CSVSummaryRenderer) RenderSummary(ctx context.Context, in RenderInput, w io.Writer, opts SummaryOptions) (SummaryStats, error) {
	if in.Notebook == nil {
		return SummaryStats{}, NewError(KindValidation, "summary requires a parsed notebook", nil)
	}

	cw := &countingWriter{w: newLimitedWriter(w, opts.MaxBytes)}
	writer := csv.NewWriter(cw)
	if opts.Delimiter != 0 {
		writer.Comma = opts.Delimiter
	}

	if opts.IncludeHeader {
		if err := writer.Write(summaryColumns); err != nil {
			return SummaryStats{}, err
		}
	}

	stats := SummaryStats{}
	for _, row := range buildSummaryRows(in.Notebook) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		execution := ""
		if row.Execution != nil {
			execution = strconv.Itoa(*row.Execution)
		}
		record := []string{
			strconv.Itoa(row.Index),
			row.Type,
			strconv.Itoa(row.Lines),
			execution,
			strconv.Itoa(row.Outputs),
			row.Preview,
		}
		if err := writer.Write(record); err != nil {
			return stats, err
		}
		stats.Rows++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return stats, err
	}

	stats.Bytes = cw.count
	return stats, nil
}

type countingWriter struct {
	w     io.Writer
	count int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.count += int64(n)
	return n, err
}

type limitedWriter struct {
	w     io.Writer
	count int64
	limit int64
}

func newLimitedWriter(w io.Writer, limit int64) *limitedWriter {
	return &limitedWriter{w: w, limit: limit}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.limit > 0 && lw.count+int64(len(p)) > lw.limit {
		return 0, NewError(KindValidation, "max bytes exceeded", nil)
	}
	n, err := lw.w.Write(p)
	lw.count += int64(n)
	return n, err
}
