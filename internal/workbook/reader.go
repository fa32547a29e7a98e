package workbook

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/garyjia/receipt-pipeline/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// moneyPlaces is the precision kept when reading amounts back from cells
const moneyPlaces = 4

// ReadResult is the outcome of reading one artifact. Records holds the pages
// that parsed; Errors holds one *entity.IRParseError per skipped page.
type ReadResult struct {
	Artifact string
	Records  []entity.ReceiptRecord
	Errors   []error
}

// Reader reconstructs records from reviewed workbooks
type Reader struct {
	taxonomy   *taxonomy.Taxonomy
	validation validation.Config
	logger     *zap.Logger
}

// NewReader creates a new reader
func NewReader(tax *taxonomy.Taxonomy, cfg validation.Config, logger *zap.Logger) *Reader {
	return &Reader{taxonomy: tax, validation: cfg, logger: logger}
}

// ReadAll reads artifacts in argument order. Batch numbers follow the argument
// position; an artifact that cannot be opened is reported and skipped.
func (r *Reader) ReadAll(ctx context.Context, paths []string) ([]entity.Batch, []error) {
	var (
		batches []entity.Batch
		errs    []error
	)
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result, err := r.ReadArtifact(ctx, path)
		if err != nil {
			r.logger.Error("Failed to read review workbook", zap.String("path", path), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		errs = append(errs, result.Errors...)
		batches = append(batches, entity.Batch{Number: i + 1, Records: result.Records})
	}
	return batches, errs
}

// SheetNames lists the sheets of a workbook without reading their cells
func SheetNames(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// ReadArtifact parses every record sheet of one workbook. Malformed pages are
// skipped; only a workbook that cannot be opened returns an error.
func (r *Reader) ReadArtifact(ctx context.Context, path string) (*ReadResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	result := &ReadResult{Artifact: path}
	artifact := filepath.Base(path)

	page := 0
	for _, sheet := range f.GetSheetList() {
		if !IsRecordSheet(sheet) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pr := &pageReader{f: f, sheet: sheet, artifact: artifact}
		record, err := r.readPage(pr, page)
		page++
		if err != nil {
			r.logger.Warn("Skipping malformed page",
				zap.String("artifact", artifact),
				zap.String("sheet", sheet),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}
		result.Records = append(result.Records, *record)
	}

	r.logger.Info("Review workbook read",
		zap.String("path", path),
		zap.Int("records", len(result.Records)),
		zap.Int("skipped", len(result.Errors)))

	return result, nil
}

func (r *Reader) readPage(pr *pageReader, fallbackSequence int) (*entity.ReceiptRecord, error) {
	status, err := entity.ParseProcessingStatus(pr.value(colValue, rowStatus))
	if err != nil {
		return nil, pr.fail("status", err.Error(), nil)
	}

	record := &entity.ReceiptRecord{
		Sequence:      fallbackSequence,
		ReceiptNumber: pr.value(colValue, rowReceiptNumber),
		VendorName:    pr.value(colValue, rowVendor),
		VendorTaxID:   pr.value(colValue, rowVendorTaxID),
		SourceAsset:   pr.value(colValue, rowSourceFile),
		RunID:         pr.value(colRunID, rowStatus),
		Status:        status,
	}
	if seq := pr.value(colCheck, rowStatus); seq != "" {
		n, err := strconv.ParseFloat(seq, 64)
		if err != nil {
			return nil, pr.fail("sequence", fmt.Sprintf("invalid sequence %q", seq), nil)
		}
		record.Sequence = int(n)
	}

	if status == entity.StatusFailed {
		if !pr.filledIn() {
			return nil, pr.fail("status", "extraction failed and the page was not filled in", entity.ErrFailedPlaceholder)
		}
		record.Status = entity.StatusManualEntry
	}

	if record.VendorName == "" {
		return nil, pr.fail("vendor", "missing required field", nil)
	}

	dateCell := pr.value(colValue, rowDate)
	if dateCell == "" {
		return nil, pr.fail("date", "missing required field", nil)
	}
	if record.Date, err = r.parseDate(dateCell); err != nil {
		return nil, pr.fail("date", err.Error(), nil)
	}

	docType := pr.value(colValue, rowDocumentType)
	if docType == "" {
		return nil, pr.fail("document_type", "missing required field", nil)
	}
	if record.DocumentType, err = entity.ParseDocumentType(docType); err != nil {
		return nil, pr.fail("document_type", err.Error(), nil)
	}

	amounts := []struct {
		field  string
		row    int
		target *decimal.Decimal
	}{
		{"total_excl_vat", rowTotalExclVAT, &record.Amounts.TotalExclVAT},
		{"vat_amount", rowVATAmount, &record.Amounts.VATAmount},
		{"total_incl_vat", rowTotalInclVAT, &record.Amounts.TotalInclVAT},
	}
	for _, a := range amounts {
		raw := pr.value(colValue, a.row)
		if raw == "" {
			return nil, pr.fail(a.field, "missing required field", nil)
		}
		if *a.target, err = parseAmount(raw); err != nil {
			return nil, pr.fail(a.field, err.Error(), nil)
		}
	}

	category := pr.value(colValue, rowCategory)
	if category == "" {
		return nil, pr.fail("category", "missing required field", nil)
	}
	canonical, ok := r.taxonomy.Resolve(category)
	if !ok {
		return nil, pr.fail("category", fmt.Sprintf("%q is not in the taxonomy", category), nil)
	}
	record.Classification.Category = canonical

	if conf := pr.value(colValue, rowConfidence); conf != "" {
		if record.Classification.Confidence, err = strconv.ParseFloat(conf, 64); err != nil {
			return nil, pr.fail("confidence", fmt.Sprintf("invalid confidence %q", conf), nil)
		}
	}

	if record.LineItems, err = r.readLineItems(pr); err != nil {
		return nil, err
	}

	// Check cells may hold stale cached results; derive everything again
	record.Annotations = validation.Annotate(record, r.validation)
	return record, nil
}

// readLineItems reads rows until the first blank description
func (r *Reader) readLineItems(pr *pageReader) ([]entity.LineItem, error) {
	items := []entity.LineItem{}
	for row := FirstLineRow; row <= LastLineRow; row++ {
		desc := pr.value(colLineDescription, row)
		if desc == "" {
			break
		}
		field := func(name string) string { return fmt.Sprintf("line_items[%d].%s", row-FirstLineRow, name) }

		item := entity.LineItem{Description: desc}

		raw := pr.value(colLineExclVAT, row)
		if raw == "" {
			return nil, pr.fail(field("amount_excl_vat"), "missing required field", nil)
		}
		var err error
		if item.AmountExclVAT, err = parseAmount(raw); err != nil {
			return nil, pr.fail(field("amount_excl_vat"), err.Error(), nil)
		}

		if raw = pr.value(colLineVAT, row); raw != "" {
			if item.VATAmount, err = parseAmount(raw); err != nil {
				return nil, pr.fail(field("vat_amount"), err.Error(), nil)
			}
		}

		if raw = pr.value(colLineTotal, row); raw != "" {
			if item.Total, err = parseAmount(raw); err != nil {
				return nil, pr.fail(field("total"), err.Error(), nil)
			}
		} else {
			item.Total = item.AmountExclVAT.Add(item.VATAmount)
		}

		if item.Deductible, err = parseBool(pr.value(colLineDeductible, row)); err != nil {
			return nil, pr.fail(field("deductible"), err.Error(), nil)
		}

		item.Notes = stripCheckNotes(pr.value(colLineNotes, row))
		items = append(items, item)
	}
	return items, nil
}

// parseDate accepts the text layouts and Excel serial dates
func (r *Reader) parseDate(s string) (time.Time, error) {
	if t, err := validation.ParseDate(s); err == nil {
		return t, nil
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date serial %q: %w", s, err)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := validation.ParseMoney(s)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(moneyPlaces), nil
}

// parseBool reads a deductible cell; blank means true
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "true", "1", "yes", "y", "כן":
		return true, nil
	case "false", "0", "no", "n", "לא":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// stripCheckNotes drops generated check lines and keeps what the reviewer wrote
func stripCheckNotes(s string) string {
	if s == "" {
		return ""
	}
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, checkMarker) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// pageReader reads raw cell values of one sheet
type pageReader struct {
	f        *excelize.File
	sheet    string
	artifact string
}

// value returns the trimmed raw value; formula cached results are never used
// for the stored fields because those cells hold literals
func (p *pageReader) value(col string, row int) string {
	v, err := p.f.GetCellValue(p.sheet, cell(col, row), excelize.Options{RawCellValue: true})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

// filledIn reports whether a reviewer entered data on a Failed page
func (p *pageReader) filledIn() bool {
	for _, row := range []int{rowReceiptNumber, rowVendor, rowTotalInclVAT} {
		if p.value(colValue, row) != "" {
			return true
		}
	}
	return p.value(colLineDescription, FirstLineRow) != ""
}

func (p *pageReader) fail(field, reason string, err error) error {
	return &entity.IRParseError{
		Artifact: p.artifact,
		Sheet:    p.sheet,
		Field:    field,
		Reason:   reason,
		Err:      err,
	}
}

// IsFailedPlaceholder reports whether err is an unfilled Failed page
func IsFailedPlaceholder(err error) bool {
	return errors.Is(err, entity.ErrFailedPlaceholder)
}
