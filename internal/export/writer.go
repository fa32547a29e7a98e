package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Columns is the fixed header of the accounting import file
var Columns = []string{
	"Supplier ID",
	"Supplier Name",
	"Expense Type",
	"Amount",
	"Currency",
	"Exchange Rate",
	"Document Type",
	"Document Number",
	"Document Date",
	"Payment Date",
	"Paid",
	"Paid On",
	"Reporting Date",
	"Customer",
	"Project",
}

const (
	sheetName = "Export"

	colAmount       = 3
	colExchangeRate = 5
)

// utf8BOM lets spreadsheet tools detect UTF-8 vendor names in CSV
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Format selects the output encoding
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFromPath picks the format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export extension %q", filepath.Ext(path))
}

// Writer emits consolidated entries in mapper order; it never sorts
type Writer struct {
	logger *zap.Logger
}

// NewWriter creates a new export writer
func NewWriter(logger *zap.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write writes entries to path in the format implied by its extension
func (w *Writer) Write(ctx context.Context, entries []entity.ConsolidatedEntry, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	switch format {
	case FormatCSV:
		err = w.writeCSVFile(entries, path)
	default:
		err = w.writeXLSX(entries, path)
	}
	if err != nil {
		return err
	}

	w.logger.Info("Export written",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.Int("rows", len(entries)))
	return nil
}

// Row converts an entry into its export cells
func Row(e entity.ConsolidatedEntry) []string {
	return []string{
		e.SupplierID,
		e.SupplierName,
		e.ExpenseType,
		e.Amount.StringFixed(2),
		e.Currency,
		e.ExchangeRate.String(),
		e.DocumentTypeCode,
		e.DocumentNumber,
		formatDate(e.DocumentDate),
		formatDate(e.PaymentDate),
		e.Paid,
		formatDate(e.PaidOn),
		formatDate(e.ReportingDate),
		e.Customer,
		e.Project,
	}
}

func (w *Writer) writeCSVFile(entries []entity.ConsolidatedEntry, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := WriteCSV(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteCSV writes the header and one row per entry, preceded by a UTF-8 BOM
func WriteCSV(out io.Writer, entries []entity.ConsolidatedEntry) error {
	if _, err := out.Write(utf8BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, e := range entries {
		if err := cw.Write(Row(e)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (w *Writer) writeXLSX(entries []entity.ConsolidatedEntry, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, e := range entries {
		row := i + 2
		cells := Row(e)
		values := make([]interface{}, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		// Amounts stay numeric so the import sees numbers, not text
		values[colAmount] = e.Amount.Round(2).InexactFloat64()
		values[colExchangeRate] = e.ExchangeRate.InexactFloat64()

		start, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, start, &values); err != nil {
			return fmt.Errorf("writing row %d: %w", row, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Columns))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", bold); err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := f.SetCellStyle(sheetName, "D2", fmt.Sprintf("D%d", len(entries)+1), money); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 16); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save export: %w", err)
	}
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(entity.DateLayout)
}
