package workbook

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/garyjia/receipt-pipeline/internal/asset"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/garyjia/receipt-pipeline/internal/validation"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testTaxonomy(t *testing.T) *taxonomy.Taxonomy {
	t.Helper()
	tax, err := taxonomy.New([]taxonomy.Category{
		{Name: "Office Supplies", VATDeductiblePct: 100, IncomeTaxDeductiblePct: 100},
		{Name: "Meals", VATDeductiblePct: 0, IncomeTaxDeductiblePct: 80},
		{Name: "Fuel", VATDeductiblePct: 66, IncomeTaxDeductiblePct: 45},
	})
	require.NoError(t, err)
	return tax
}

func testRecord(seq int, vendor string) entity.ReceiptRecord {
	rec := entity.ReceiptRecord{
		Sequence:      seq,
		ReceiptNumber: fmt.Sprintf("INV-%03d", seq),
		VendorName:    vendor,
		VendorTaxID:   "514789632",
		Date:          time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		DocumentType:  entity.DocumentTypeInvoiceReceipt,
		SourceAsset:   fmt.Sprintf("receipts/%s.pdf", vendor),
		Amounts: entity.Amounts{
			TotalExclVAT: d("150.00"),
			VATAmount:    d("27.00"),
			TotalInclVAT: d("177.00"),
		},
		Classification: entity.Classification{Category: "Office Supplies", Confidence: 0.92},
		LineItems: []entity.LineItem{
			{Description: "Paper A4", AmountExclVAT: d("100"), VATAmount: d("18"), Total: d("118"), Deductible: true},
			{Description: "Pens", AmountExclVAT: d("50"), VATAmount: d("9"), Total: d("59"), Deductible: false, Notes: "personal use"},
		},
		Status: entity.StatusExtracted,
	}
	rec.Annotations = validation.Annotate(&rec, validation.DefaultConfig())
	return rec
}

func newTestWriter(t *testing.T, cfg Config) *Writer {
	t.Helper()
	w, err := NewWriter(cfg, testTaxonomy(t), nil, zap.NewNop())
	require.NoError(t, err)
	return w
}

func newTestReader(t *testing.T) *Reader {
	t.Helper()
	return NewReader(testTaxonomy(t), validation.DefaultConfig(), zap.NewNop())
}

func writeOne(t *testing.T, records ...entity.ReceiptRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.xlsx")
	_, err := newTestWriter(t, Config{Capacity: 10}).WriteBatch(context.Background(), entity.Batch{Number: 1, Records: records}, path)
	require.NoError(t, err)
	return path
}

// edit opens an artifact, applies fn and saves it back, as a reviewer would
func edit(t *testing.T, path string, fn func(f *excelize.File)) {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	fn(f)
	require.NoError(t, f.Save())
	require.NoError(t, f.Close())
}

func assertSameRecord(t *testing.T, want, got entity.ReceiptRecord) {
	t.Helper()
	assert.Equal(t, want.Sequence, got.Sequence)
	assert.Equal(t, want.RunID, got.RunID)
	assert.Equal(t, want.ReceiptNumber, got.ReceiptNumber)
	assert.Equal(t, want.VendorName, got.VendorName)
	assert.Equal(t, want.VendorTaxID, got.VendorTaxID)
	assert.True(t, want.Date.Equal(got.Date), "date %s != %s", want.Date, got.Date)
	assert.Equal(t, want.DocumentType, got.DocumentType)
	assert.Equal(t, want.SourceAsset, got.SourceAsset)
	assert.True(t, want.Amounts.TotalExclVAT.Equal(got.Amounts.TotalExclVAT))
	assert.True(t, want.Amounts.VATAmount.Equal(got.Amounts.VATAmount))
	assert.True(t, want.Amounts.TotalInclVAT.Equal(got.Amounts.TotalInclVAT))
	assert.Equal(t, want.Classification, got.Classification)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Annotations, got.Annotations)

	require.Len(t, got.LineItems, len(want.LineItems))
	for i := range want.LineItems {
		w, g := want.LineItems[i], got.LineItems[i]
		assert.Equal(t, w.Description, g.Description)
		assert.True(t, w.AmountExclVAT.Equal(g.AmountExclVAT), "line %d excl", i)
		assert.True(t, w.VATAmount.Equal(g.VATAmount), "line %d vat", i)
		assert.True(t, w.Total.Equal(g.Total), "line %d total", i)
		assert.Equal(t, w.Deductible, g.Deductible, "line %d deductible", i)
		assert.Equal(t, w.Notes, g.Notes, "line %d notes", i)
	}
}

func TestRoundTrip_UneditedRecords(t *testing.T) {
	odd := testRecord(1, "Cafe Noir")
	odd.Classification.Category = "Meals"
	odd.Amounts.TotalInclVAT = d("180.00") // totals mismatch, Error annotation
	odd.LineItems[0].VATAmount = d("45")   // unrecognized rate, Warning annotation
	odd.LineItems[0].Total = d("145")
	odd.Annotations = validation.Annotate(&odd, validation.DefaultConfig())
	require.Equal(t, entity.SeverityError, odd.HighestSeverity())

	noLines := testRecord(2, "Paz")
	noLines.Classification.Category = "Fuel"
	noLines.LineItems = []entity.LineItem{}
	noLines.Annotations = validation.Annotate(&noLines, validation.DefaultConfig())

	records := []entity.ReceiptRecord{testRecord(0, "Office Depot"), odd, noLines}
	path := writeOne(t, records...)

	result, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Records, len(records))
	for i := range records {
		assertSameRecord(t, records[i], result.Records[i])
	}
}

func TestWriteBatch_Layout(t *testing.T) {
	path := writeOne(t, testRecord(0, "Office Depot"), testRecord(1, "Staples"))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"R001", "R002", ListsSheet}, f.GetSheetList())

	visible, err := f.GetSheetVisible(ListsSheet)
	require.NoError(t, err)
	assert.False(t, visible)

	formulas := map[string]string{
		"C7":   "SUM(B15:B115)",
		"C8":   "SUM(C15:C115)",
		"C9":   "B7+B8",
		"D15":  "IF(B15=0,0,C15/B15*100)",
		"D115": "IF(B115=0,0,C115/B115*100)",
	}
	for c, want := range formulas {
		got, err := f.GetCellFormula("R001", c)
		require.NoError(t, err)
		assert.Equal(t, want, got, c)
	}

	label, err := f.GetCellValue("R001", "A2")
	require.NoError(t, err)
	assert.Equal(t, "Receipt No.", label)

	docType, err := f.GetCellValue("R001", "B6")
	require.NoError(t, err)
	assert.Equal(t, "Invoice+Receipt", docType)

	date, err := f.GetCellValue("R001", "B5")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-14", date)

	dvs, err := f.GetDataValidations("R001")
	require.NoError(t, err)
	assert.Len(t, dvs, 3)

	categories, err := f.GetCellValue(ListsSheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "Meals", categories)
}

func TestWriteBatch_FlagsUnknownCategory(t *testing.T) {
	rec := testRecord(0, "Mystery Shop")
	rec.Classification.Category = "Spaceships"

	path := filepath.Join(t.TempDir(), "flagged.xlsx")
	result, err := newTestWriter(t, Config{Capacity: 10}).WriteBatch(context.Background(), entity.Batch{Number: 1, Records: []entity.ReceiptRecord{rec}}, path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FlaggedCategories)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	note, err := f.GetCellValue("R001", "D10")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Contains(t, note, "Spaceships")

	// Left unfixed, the page is rejected on read
	read, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, read.Records)
	require.Len(t, read.Errors, 1)
	var parseErr *entity.IRParseError
	require.True(t, errors.As(read.Errors[0], &parseErr))
	assert.Equal(t, "category", parseErr.Field)
	assert.Equal(t, "R001", parseErr.Sheet)
}

func TestReadArtifact_HumanEdits(t *testing.T) {
	path := writeOne(t, testRecord(0, "Office Depot"))

	edit(t, path, func(f *excelize.File) {
		require.NoError(t, f.SetCellBool("R001", "F15", false))
		require.NoError(t, f.SetCellStr("R001", "F16", "כן"))
		require.NoError(t, f.SetCellStr("R001", "B10", "meals"))
		require.NoError(t, f.SetCellStr("R001", "B6", "Receipt"))
		// Raw inputs changed after the check formulas were last computed
		require.NoError(t, f.SetCellFloat("R001", "C15", 40, -1, 64))
		require.NoError(t, f.SetCellFloat("R001", "B8", 49, -1, 64))
		require.NoError(t, f.SetCellFloat("R001", "B9", 199, -1, 64))
		require.NoError(t, f.SetCellStr("R001", "A17", "Stapler"))
		require.NoError(t, f.SetCellFloat("R001", "B17", 20, -1, 64))
	})

	result, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Records, 1)
	rec := result.Records[0]

	assert.Equal(t, "Meals", rec.Classification.Category)
	assert.Equal(t, entity.DocumentTypeReceipt, rec.DocumentType)
	require.Len(t, rec.LineItems, 3)
	assert.False(t, rec.LineItems[0].Deductible)
	assert.True(t, rec.LineItems[1].Deductible)
	assert.Equal(t, "personal use", rec.LineItems[1].Notes)

	// Blank VAT reads as zero and a blank total as excl + VAT
	assert.True(t, rec.LineItems[2].VATAmount.IsZero())
	assert.True(t, rec.LineItems[2].Total.Equal(d("20")))

	// 40 on 100 is not a recognized rate
	var lineWarnings int
	for _, a := range rec.Annotations {
		if a.Field == entity.FieldLineVAT && a.LineIndex == 0 {
			lineWarnings++
		}
	}
	assert.Equal(t, 1, lineWarnings)
}

func TestReadArtifact_IgnoresStaleFormulaResults(t *testing.T) {
	rec := testRecord(0, "Office Depot")
	path := writeOne(t, rec)

	// Cached results that disagree with the raw columns, formulas kept
	stale := []struct {
		cell    string
		value   float64
		formula string
	}{
		{"D15", 40, "IF(B15=0,0,C15/B15*100)"},
		{"D16", 0, "IF(B16=0,0,C16/B16*100)"},
		{"C7", 999, "SUM(B15:B115)"},
		{"C8", 1, "SUM(C15:C115)"},
		{"C9", 5, "B7+B8"},
	}
	edit(t, path, func(f *excelize.File) {
		for _, c := range stale {
			require.NoError(t, f.SetCellFloat("R001", c.cell, c.value, -1, 64))
			require.NoError(t, f.SetCellFormula("R001", c.cell, c.formula))
		}
	})

	result, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Records, 1)
	got := result.Records[0]

	// 18 on 100 and 9 on 50 are recognized rates, whatever D15 and D16 claim
	assert.Equal(t, validation.Annotate(&rec, validation.DefaultConfig()), got.Annotations)
	assert.Equal(t, entity.SeverityOK, got.HighestSeverity())
	assert.True(t, got.LineItems[0].VATAmount.Equal(d("18")))
	assert.True(t, got.Amounts.TotalExclVAT.Equal(d("150")))
}

func TestRoundTrip_BlankDescriptionKeepsFollowingLines(t *testing.T) {
	rec := testRecord(0, "Office Depot")
	rec.LineItems = append(rec.LineItems, entity.LineItem{Description: "Toner", AmountExclVAT: d("10"), VATAmount: d("1.8"), Total: d("11.8"), Deductible: true})
	rec.LineItems[1].Description = "   "
	path := writeOne(t, rec)

	result, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Records, 1)

	lines := result.Records[0].LineItems
	require.Len(t, lines, 3)
	assert.Equal(t, MissingDescription, lines[1].Description)
	assert.Equal(t, "personal use", lines[1].Notes)
	assert.Equal(t, "Toner", lines[2].Description)
}

func TestWriteAll_TruncatesOversizedRecordAndKeepsGoing(t *testing.T) {
	records := make([]entity.ReceiptRecord, 15)
	for i := range records {
		records[i] = testRecord(i, fmt.Sprintf("Vendor %02d", i))
	}
	big := &records[1]
	big.LineItems = nil
	for i := 0; i < MaxLineItems+11; i++ {
		big.LineItems = append(big.LineItems, entity.LineItem{
			Description: fmt.Sprintf("Item %d", i), AmountExclVAT: d("10"), VATAmount: d("1.8"), Total: d("11.8"), Deductible: true,
		})
	}
	big.Annotations = validation.Annotate(big, validation.DefaultConfig())

	dir := t.TempDir()
	results, err := newTestWriter(t, Config{Capacity: 10}).WriteAll(context.Background(), records, dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].TruncatedRecords)
	assert.Equal(t, 10, results[0].Sheets)
	assert.Equal(t, 0, results[1].TruncatedRecords)
	assert.Equal(t, 5, results[1].Sheets)

	f, err := excelize.OpenFile(results[0].Path)
	require.NoError(t, err)
	note, err := f.GetCellValue("R002", "D13")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Contains(t, note, "112 line items")

	batches, errs := newTestReader(t).ReadAll(context.Background(), []string{results[0].Path, results[1].Path})
	require.Empty(t, errs)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Records[1].LineItems, MaxLineItems)
	assert.Equal(t, "Item 100", batches[0].Records[1].LineItems[MaxLineItems-1].Description)
	assert.Len(t, batches[1].Records, 5)
}

func TestReadArtifact_ExcelSerialDate(t *testing.T) {
	path := writeOne(t, testRecord(0, "Office Depot"))
	edit(t, path, func(f *excelize.File) {
		// 45365 is 2024-03-14
		require.NoError(t, f.SetCellInt("R001", "B5", 45365))
	})

	result, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "2024-03-14", result.Records[0].DocumentDate())
}

func TestReadArtifact_SkipsMalformedPagesAndContinues(t *testing.T) {
	path := writeOne(t, testRecord(0, "A"), testRecord(1, "B"), testRecord(2, "C"))
	edit(t, path, func(f *excelize.File) {
		require.NoError(t, f.SetCellStr("R001", "B3", ""))
		require.NoError(t, f.SetCellStr("R002", "B7", "lots"))
	})

	result, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "C", result.Records[0].VendorName)
	assert.Equal(t, 2, result.Records[0].Sequence)

	require.Len(t, result.Errors, 2)
	var parseErr *entity.IRParseError
	require.True(t, errors.As(result.Errors[0], &parseErr))
	assert.Equal(t, "vendor", parseErr.Field)
	require.True(t, errors.As(result.Errors[1], &parseErr))
	assert.Equal(t, "total_excl_vat", parseErr.Field)
}

func TestReadArtifact_FailedPlaceholder(t *testing.T) {
	failed := *entity.NewFailedRecord(1, "receipts/blurry.jpg", "schema error at amounts.total_incl_vat: missing required field", `{"amounts":{}}`)
	path := writeOne(t, testRecord(0, "Office Depot"), failed)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	status, _ := f.GetCellValue("R002", "B13")
	payload, _ := f.GetCellValue("R002", "D13")
	require.NoError(t, f.Close())
	assert.Equal(t, "Failed", status)
	assert.Contains(t, payload, `{"amounts":{}}`)

	result, err := newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.Len(t, result.Errors, 1)
	assert.True(t, IsFailedPlaceholder(result.Errors[0]))

	// The reviewer fills the page in by hand
	edit(t, path, func(f *excelize.File) {
		require.NoError(t, f.SetCellStr("R002", "B3", "Blurry Bakery"))
		require.NoError(t, f.SetCellStr("R002", "B5", "14/03/2024"))
		require.NoError(t, f.SetCellStr("R002", "B6", "Invoice"))
		require.NoError(t, f.SetCellFloat("R002", "B7", 10, -1, 64))
		require.NoError(t, f.SetCellFloat("R002", "B8", 1.8, -1, 64))
		require.NoError(t, f.SetCellFloat("R002", "B9", 11.8, -1, 64))
		require.NoError(t, f.SetCellStr("R002", "B10", "Meals"))
	})

	result, err = newTestReader(t).ReadArtifact(context.Background(), path)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Len(t, result.Records, 2)
	manual := result.Records[1]
	assert.Equal(t, entity.StatusManualEntry, manual.Status)
	assert.Equal(t, 1, manual.Sequence)
	assert.Equal(t, "receipts/blurry.jpg", manual.SourceAsset)
	assert.Empty(t, manual.LineItems)
}

func TestWriteAll_PartitionsAndReadAllKeepsOrder(t *testing.T) {
	records := make([]entity.ReceiptRecord, 12)
	for i := range records {
		records[i] = testRecord(i, fmt.Sprintf("Vendor %02d", i))
	}

	dir := t.TempDir()
	results, err := newTestWriter(t, Config{Capacity: 10, FilePrefix: "march"}).WriteAll(context.Background(), records, dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, filepath.Join(dir, "march_part01.xlsx"), results[0].Path)
	assert.Equal(t, 10, results[0].Sheets)
	assert.Equal(t, 2, results[1].Sheets)

	paths := []string{results[0].Path, filepath.Join(dir, "missing.xlsx"), results[1].Path}
	batches, errs := newTestReader(t).ReadAll(context.Background(), paths)
	require.Len(t, errs, 1)
	require.Len(t, batches, 2)
	assert.Equal(t, 1, batches[0].Number)
	assert.Equal(t, 3, batches[1].Number)

	var seqs []int
	for _, b := range batches {
		for _, r := range b.Records {
			seqs = append(seqs, r.Sequence)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, seqs)
}

func TestWriteBatch_EmbedsImagesAndToleratesMissingAssets(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "receipt.png")
	require.NoError(t, imaging.Save(imaging.New(400, 600, color.White), imgPath))

	withImage := testRecord(0, "Office Depot")
	withImage.SourceAsset = imgPath
	missing := testRecord(1, "Ghost")
	missing.SourceAsset = filepath.Join(dir, "gone.png")

	loader := asset.NewLoader(asset.DefaultConfig(), zap.NewNop())
	w, err := NewWriter(Config{Capacity: 10, EmbedImages: true}, testTaxonomy(t), loader, zap.NewNop())
	require.NoError(t, err)

	out := filepath.Join(dir, "images.xlsx")
	result, err := w.WriteBatch(context.Background(), entity.Batch{Number: 1, Records: []entity.ReceiptRecord{withImage, missing}}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ImageFailures)
	assert.Equal(t, 2, result.Sheets)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	pics, err := f.GetPictures("R001", "H2")
	require.NoError(t, err)
	assert.Len(t, pics, 1)
}

func TestNewWriter_RejectsInvalidConfig(t *testing.T) {
	_, err := NewWriter(Config{Capacity: 0}, testTaxonomy(t), nil, zap.NewNop())
	var cfgErr *entity.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "workbook.receipts_per_file", cfgErr.Key)

	_, err = NewWriter(Config{Capacity: 10}, nil, nil, zap.NewNop())
	assert.True(t, errors.Is(err, entity.ErrTaxonomyMissing))
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"", true, false},
		{"TRUE", true, false},
		{"0", false, false},
		{"no", false, false},
		{"לא", false, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		got, err := parseBool(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
