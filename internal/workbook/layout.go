package workbook

import (
	"fmt"
	"regexp"
)

// Sheet layout shared by the writer and the reader. One sheet per receipt.
const (
	ListsSheet = "Lists"

	rowLabels        = 1
	rowReceiptNumber = 2
	rowVendor        = 3
	rowVendorTaxID   = 4
	rowDate          = 5
	rowDocumentType  = 6
	rowTotalExclVAT  = 7
	rowVATAmount     = 8
	rowTotalInclVAT  = 9
	rowCategory      = 10
	rowConfidence    = 11
	rowSourceFile    = 12
	rowStatus        = 13
	rowLineHeader    = 14

	// FirstLineRow and LastLineRow bound the line item block
	FirstLineRow = 15
	LastLineRow  = 115
	MaxLineItems = LastLineRow - FirstLineRow + 1

	colLabel = "A"
	colValue = "B"
	colCheck = "C"
	colNotes = "D"
	// colRunID holds the extraction run id on the status row
	colRunID = "E"

	colLineDescription = "A"
	colLineExclVAT     = "B"
	colLineVAT         = "C"
	colLineVATRate     = "D"
	colLineTotal       = "E"
	colLineDeductible  = "F"
	colLineNotes       = "G"

	imageTopLeft     = "H2"
	imageBottomRight = "K25"

	// maxCellChars is the Excel limit for one cell
	maxCellChars = 32000

	// checkMarker prefixes generated check notes so the reader can drop them
	checkMarker = "⚑ "
)

var headerLabels = map[int]string{
	rowReceiptNumber: "Receipt No.",
	rowVendor:        "Vendor",
	rowVendorTaxID:   "Vendor Tax ID",
	rowDate:          "Date",
	rowDocumentType:  "Document Type",
	rowTotalExclVAT:  "Total excl. VAT",
	rowVATAmount:     "VAT",
	rowTotalInclVAT:  "Total incl. VAT",
	rowCategory:      "Category",
	rowConfidence:    "Confidence",
	rowSourceFile:    "Source File",
	rowStatus:        "Status",
}

var lineHeaders = []struct {
	col   string
	label string
}{
	{colLineDescription, "Description"},
	{colLineExclVAT, "Excl. VAT"},
	{colLineVAT, "VAT"},
	{colLineVATRate, "VAT %"},
	{colLineTotal, "Total incl. VAT"},
	{colLineDeductible, "Deductible"},
	{colLineNotes, "Notes"},
}

var sheetPattern = regexp.MustCompile(`^R\d{3}$`)

// SheetName returns the sheet name of the i-th (0-based) record in an artifact
func SheetName(i int) string {
	return fmt.Sprintf("R%03d", i+1)
}

// IsRecordSheet reports whether a sheet holds a receipt
func IsRecordSheet(name string) bool {
	return sheetPattern.MatchString(name)
}

// ArtifactName returns the file name of a batch's artifact
func ArtifactName(prefix string, batchNumber int) string {
	return fmt.Sprintf("%s_part%02d.xlsx", prefix, batchNumber)
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
