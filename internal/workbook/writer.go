package workbook

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/asset"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Config controls artifact generation
type Config struct {
	Capacity          int
	FilePrefix        string
	EmbedImages       bool
	ImageMaxDimension int
}

// WriteResult describes one written artifact
type WriteResult struct {
	Path              string
	BatchNumber       int
	Sheets            int
	FlaggedCategories int
	ImageFailures     int
	// TruncatedRecords counts records with more line items than a sheet holds
	TruncatedRecords  int
}

// MissingDescription stands in for a blank line item description, which the
// reader would otherwise take as the end of the line block
const MissingDescription = "(no description)"

// sheetOutcome reports what writeRecord had to flag on one sheet
type sheetOutcome struct {
	flaggedCategory bool
	droppedLines    int
}

// Writer renders batches of records into review workbooks
type Writer struct {
	cfg      Config
	taxonomy *taxonomy.Taxonomy
	images   port.AssetLoader
	logger   *zap.Logger
}

// NewWriter creates a new writer. images may be nil, which disables embedding.
func NewWriter(cfg Config, tax *taxonomy.Taxonomy, images port.AssetLoader, logger *zap.Logger) (*Writer, error) {
	if cfg.Capacity <= 0 {
		return nil, &entity.ConfigError{Key: "workbook.receipts_per_file", Reason: fmt.Sprintf("must be positive, got %d", cfg.Capacity)}
	}
	if tax == nil {
		return nil, &entity.ConfigError{Key: "taxonomy", Reason: "not loaded", Err: entity.ErrTaxonomyMissing}
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "receipts"
	}
	if cfg.ImageMaxDimension <= 0 {
		cfg.ImageMaxDimension = 1000
	}
	return &Writer{cfg: cfg, taxonomy: tax, images: images, logger: logger}, nil
}

// WriteAll partitions records by the configured capacity and writes one
// artifact per batch into outputDir
func (w *Writer) WriteAll(ctx context.Context, records []entity.ReceiptRecord, outputDir string) ([]*WriteResult, error) {
	batches, err := entity.Partition(records, w.cfg.Capacity)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	results := make([]*WriteResult, 0, len(batches))
	for _, batch := range batches {
		path := filepath.Join(outputDir, ArtifactName(w.cfg.FilePrefix, batch.Number))
		result, err := w.WriteBatch(ctx, batch, path)
		if err != nil {
			return results, fmt.Errorf("failed to write batch %d: %w", batch.Number, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// WriteBatch writes one artifact with a sheet per record in batch order
func (w *Writer) WriteBatch(ctx context.Context, batch entity.Batch, outputPath string) (*WriteResult, error) {
	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return nil, err
	}

	result := &WriteResult{Path: outputPath, BatchNumber: batch.Number}
	for i := range batch.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sheet := SheetName(i)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}

		rec := &batch.Records[i]
		outcome, err := w.writeRecord(f, sheet, rec, st)
		if err != nil {
			return nil, fmt.Errorf("failed to write sheet %s: %w", sheet, err)
		}
		if outcome.flaggedCategory {
			result.FlaggedCategories++
		}
		if outcome.droppedLines > 0 {
			result.TruncatedRecords++
			w.logger.Warn("Line items do not fit on the sheet",
				zap.String("sheet", sheet),
				zap.String("asset_path", rec.SourceAsset),
				zap.Int("line_items", len(rec.LineItems)),
				zap.Int("dropped", outcome.droppedLines))
		}

		if w.cfg.EmbedImages && w.images != nil && rec.SourceAsset != "" {
			if err := w.embedImage(ctx, f, sheet, rec.SourceAsset); err != nil {
				result.ImageFailures++
				w.logger.Warn("Failed to embed source image",
					zap.String("sheet", sheet),
					zap.String("asset_path", rec.SourceAsset),
					zap.Error(err))
			}
		}
		result.Sheets++
	}

	if err := w.writeLists(f); err != nil {
		return nil, err
	}
	if len(batch.Records) > 0 {
		f.SetActiveSheet(0)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := f.SaveAs(outputPath); err != nil {
		return nil, fmt.Errorf("failed to save workbook: %w", err)
	}

	w.logger.Info("Review workbook written",
		zap.String("path", outputPath),
		zap.Int("batch", batch.Number),
		zap.Int("sheets", result.Sheets),
		zap.Int("flagged_categories", result.FlaggedCategories))

	return result, nil
}

// writeLists fills the hidden sheet that backs the dropdowns
func (w *Writer) writeLists(f *excelize.File) error {
	if _, err := f.NewSheet(ListsSheet); err != nil {
		return fmt.Errorf("failed to create lists sheet: %w", err)
	}
	for i, dt := range entity.DocumentTypes {
		if err := f.SetCellStr(ListsSheet, cell("A", i+1), dt.Label()); err != nil {
			return err
		}
	}
	for i, name := range w.taxonomy.Names() {
		if err := f.SetCellStr(ListsSheet, cell("B", i+1), name); err != nil {
			return err
		}
	}
	return f.SetSheetVisible(ListsSheet, false)
}

func (w *Writer) writeRecord(f *excelize.File, sheet string, rec *entity.ReceiptRecord, st *styles) (sheetOutcome, error) {
	var outcome sheetOutcome
	sw := &sheetWriter{f: f, sheet: sheet}

	sw.str(cell(colLabel, rowLabels), "Field")
	sw.str(cell(colValue, rowLabels), "Value")
	sw.str(cell(colCheck, rowLabels), "Check")
	sw.str(cell(colNotes, rowLabels), "Notes")
	sw.style(cell(colLabel, rowLabels), cell(colNotes, rowLabels), st.header)

	for row := rowReceiptNumber; row <= rowStatus; row++ {
		sw.str(cell(colLabel, row), headerLabels[row])
	}
	sw.style(cell(colLabel, rowReceiptNumber), cell(colLabel, rowStatus), st.label)

	failed := rec.IsFailed()
	if !failed {
		sw.str(cell(colValue, rowReceiptNumber), rec.ReceiptNumber)
		sw.str(cell(colValue, rowVendor), rec.VendorName)
		sw.str(cell(colValue, rowVendorTaxID), rec.VendorTaxID)
		sw.str(cell(colValue, rowDate), rec.DocumentDate())
		sw.str(cell(colValue, rowDocumentType), rec.DocumentType.Label())
		sw.money(cell(colValue, rowTotalExclVAT), rec.Amounts.TotalExclVAT)
		sw.money(cell(colValue, rowVATAmount), rec.Amounts.VATAmount)
		sw.money(cell(colValue, rowTotalInclVAT), rec.Amounts.TotalInclVAT)
		sw.str(cell(colValue, rowCategory), rec.Classification.Category)
		sw.float(cell(colValue, rowConfidence), rec.Classification.Confidence)
	}
	sw.style(cell(colValue, rowTotalExclVAT), cell(colCheck, rowTotalInclVAT), st.money)

	// Live check formulas over the line block
	sw.formula(cell(colCheck, rowTotalExclVAT), fmt.Sprintf("SUM(%s%d:%s%d)", colLineExclVAT, FirstLineRow, colLineExclVAT, LastLineRow))
	sw.formula(cell(colCheck, rowVATAmount), fmt.Sprintf("SUM(%s%d:%s%d)", colLineVAT, FirstLineRow, colLineVAT, LastLineRow))
	sw.formula(cell(colCheck, rowTotalInclVAT), fmt.Sprintf("%s%d+%s%d", colValue, rowTotalExclVAT, colValue, rowVATAmount))

	// Source file with a link back to the original
	sw.str(cell(colValue, rowSourceFile), rec.SourceAsset)
	if rec.SourceAsset != "" {
		link := rec.SourceAsset
		if abs, err := filepath.Abs(rec.SourceAsset); err == nil {
			link = abs
		}
		if sw.err == nil {
			sw.err = f.SetCellHyperLink(sheet, cell(colValue, rowSourceFile), link, "External")
		}
		sw.style(cell(colValue, rowSourceFile), cell(colValue, rowSourceFile), st.link)
	}

	// Status row; the sequence keeps the original extraction order across artifacts
	sw.str(cell(colValue, rowStatus), string(rec.Status))
	sw.integer(cell(colCheck, rowStatus), rec.Sequence)
	sw.str(cell(colRunID, rowStatus), rec.RunID)
	if failed {
		sw.style(cell(colValue, rowStatus), cell(colValue, rowStatus), st.failed)
		sw.str(cell(colNotes, rowStatus), truncate(failurePayload(rec)))
	}

	for _, h := range lineHeaders {
		sw.str(cell(h.col, rowLineHeader), h.label)
	}
	sw.style(cell(colLineDescription, rowLineHeader), cell(colLineNotes, rowLineHeader), st.header)

	items := rec.LineItems
	if len(items) > MaxLineItems {
		outcome.droppedLines = len(items) - MaxLineItems
		items = items[:MaxLineItems]
		sw.style(cell(colValue, rowStatus), cell(colValue, rowStatus), st.err)
		sw.note(cell(colNotes, rowStatus), fmt.Sprintf("Error: %d line items, only the first %d fit on this sheet; enter the rest by hand",
			len(rec.LineItems), MaxLineItems))
	}
	for i, item := range items {
		row := FirstLineRow + i
		blank := strings.TrimSpace(item.Description) == ""
		if blank {
			sw.str(cell(colLineDescription, row), MissingDescription)
			sw.style(cell(colLineDescription, row), cell(colLineDescription, row), st.warning)
		} else {
			sw.str(cell(colLineDescription, row), item.Description)
		}
		sw.money(cell(colLineExclVAT, row), item.AmountExclVAT)
		sw.money(cell(colLineVAT, row), item.VATAmount)
		sw.money(cell(colLineTotal, row), item.Total)
		sw.boolean(cell(colLineDeductible, row), item.Deductible)
		sw.str(cell(colLineNotes, row), item.Notes)
		if blank {
			sw.note(cell(colLineNotes, row), "Warning: description was blank")
		}
	}
	for row := FirstLineRow; row <= LastLineRow; row++ {
		sw.formula(cell(colLineVATRate, row), fmt.Sprintf("IF(%s%d=0,0,%s%d/%s%d*100)",
			colLineExclVAT, row, colLineVAT, row, colLineExclVAT, row))
	}
	sw.style(cell(colLineExclVAT, FirstLineRow), cell(colLineVAT, LastLineRow), st.money)
	sw.style(cell(colLineVATRate, FirstLineRow), cell(colLineVATRate, LastLineRow), st.percent)
	sw.style(cell(colLineTotal, FirstLineRow), cell(colLineTotal, LastLineRow), st.money)
	sw.style(cell(colLineNotes, FirstLineRow), cell(colLineNotes, LastLineRow), st.text)

	w.renderAnnotations(sw, rec, st)

	if !failed && !w.taxonomy.Contains(rec.Classification.Category) {
		outcome.flaggedCategory = true
		sw.style(cell(colValue, rowCategory), cell(colValue, rowCategory), st.warning)
		sw.note(cell(colNotes, rowCategory), fmt.Sprintf("Warning: category %q is not in the taxonomy", rec.Classification.Category))
	}

	w.addDropdowns(sw)
	sw.layout()

	return outcome, sw.err
}

// renderAnnotations styles annotated cells and writes the messages as notes
func (w *Writer) renderAnnotations(sw *sheetWriter, rec *entity.ReceiptRecord, st *styles) {
	for _, a := range rec.Annotations {
		styleID, styled := st.forSeverity(a.Severity)
		if !styled {
			continue
		}

		if a.IsHeader() {
			row := rowTotalInclVAT
			switch a.Field {
			case entity.FieldVATRate:
				row = rowVATAmount
			case entity.FieldCategory:
				row = rowCategory
			}
			sw.style(cell(colValue, row), cell(colValue, row), styleID)
			sw.note(cell(colNotes, row), a.Message)
			continue
		}

		row := FirstLineRow + a.LineIndex
		if row > LastLineRow {
			continue
		}
		sw.style(cell(colLineVATRate, row), cell(colLineVATRate, row), styleID)
		sw.note(cell(colLineNotes, row), a.Message)
	}
}

func (w *Writer) addDropdowns(sw *sheetWriter) {
	if sw.err != nil {
		return
	}

	docType := excelize.NewDataValidation(true)
	docType.Sqref = cell(colValue, rowDocumentType)
	docType.SetSqrefDropList(fmt.Sprintf("%s!$A$1:$A$%d", ListsSheet, len(entity.DocumentTypes)))

	category := excelize.NewDataValidation(true)
	category.Sqref = cell(colValue, rowCategory)
	category.SetSqrefDropList(fmt.Sprintf("%s!$B$1:$B$%d", ListsSheet, len(w.taxonomy.Names())))

	deductible := excelize.NewDataValidation(true)
	deductible.Sqref = fmt.Sprintf("%s:%s", cell(colLineDeductible, FirstLineRow), cell(colLineDeductible, LastLineRow))
	if err := deductible.SetDropList([]string{"TRUE", "FALSE"}); err != nil {
		sw.err = err
		return
	}

	for _, dv := range []*excelize.DataValidation{docType, category, deductible} {
		if err := sw.f.AddDataValidation(sw.sheet, dv); err != nil {
			sw.err = fmt.Errorf("failed to add dropdown %s: %w", dv.Sqref, err)
			return
		}
	}
}

func (w *Writer) embedImage(ctx context.Context, f *excelize.File, sheet, path string) error {
	loaded, err := w.images.Load(ctx, path)
	if err != nil {
		return err
	}
	thumb, err := asset.Thumbnail(loaded.Data, w.cfg.ImageMaxDimension)
	if err != nil {
		return err
	}

	if err := f.MergeCell(sheet, imageTopLeft, imageBottomRight); err != nil {
		return fmt.Errorf("failed to merge image region: %w", err)
	}
	return f.AddPictureFromBytes(sheet, imageTopLeft, &excelize.Picture{
		Extension: ".jpg",
		File:      thumb,
		Format: &excelize.GraphicOptions{
			AutoFit:         true,
			LockAspectRatio: true,
			AltText:         filepath.Base(path),
		},
	})
}

func failurePayload(rec *entity.ReceiptRecord) string {
	if rec.RawPayload == "" {
		return rec.FailureReason
	}
	return rec.FailureReason + "\n\n" + rec.RawPayload
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxCellChars {
		return s
	}
	return string(runes[:maxCellChars])
}

// sheetWriter keeps the first error so cell writes read as a flat sequence
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (s *sheetWriter) str(c, v string) {
	if s.err == nil && v != "" {
		s.err = s.f.SetCellStr(s.sheet, c, v)
	}
}

func (s *sheetWriter) money(c string, d decimal.Decimal) {
	if s.err == nil {
		s.err = s.f.SetCellFloat(s.sheet, c, d.InexactFloat64(), -1, 64)
	}
}

func (s *sheetWriter) float(c string, v float64) {
	if s.err == nil {
		s.err = s.f.SetCellFloat(s.sheet, c, v, -1, 64)
	}
}

func (s *sheetWriter) integer(c string, v int) {
	if s.err == nil {
		s.err = s.f.SetCellInt(s.sheet, c, v)
	}
}

func (s *sheetWriter) boolean(c string, v bool) {
	if s.err == nil {
		s.err = s.f.SetCellBool(s.sheet, c, v)
	}
}

func (s *sheetWriter) formula(c, formula string) {
	if s.err == nil {
		s.err = s.f.SetCellFormula(s.sheet, c, formula)
	}
}

func (s *sheetWriter) style(from, to string, styleID int) {
	if s.err == nil {
		s.err = s.f.SetCellStyle(s.sheet, from, to, styleID)
	}
}

// note appends a generated check message to a notes cell
func (s *sheetWriter) note(c, msg string) {
	if s.err != nil || msg == "" {
		return
	}
	existing, err := s.f.GetCellValue(s.sheet, c)
	if err != nil {
		s.err = err
		return
	}
	line := checkMarker + msg
	if strings.TrimSpace(existing) != "" {
		line = existing + "\n" + line
	}
	s.err = s.f.SetCellStr(s.sheet, c, truncate(line))
}

func (s *sheetWriter) layout() {
	widths := []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 34},
		{"B", "B", 22},
		{"C", "E", 14},
		{"F", "F", 11},
		{"G", "G", 40},
		{"H", "K", 18},
	}
	for _, w := range widths {
		if s.err == nil {
			s.err = s.f.SetColWidth(s.sheet, w.from, w.to, w.width)
		}
	}
	if s.err == nil {
		s.err = s.f.SetPanes(s.sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      rowLineHeader,
			TopLeftCell: cell("A", FirstLineRow),
			ActivePane:  "bottomLeft",
		})
	}
}
