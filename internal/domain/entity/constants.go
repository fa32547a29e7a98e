package entity

import (
	"fmt"
	"strings"
)

// DocumentType is the fiscal document kind printed on a receipt
type DocumentType string

const (
	DocumentTypeInvoice        DocumentType = "invoice"
	DocumentTypeReceipt        DocumentType = "receipt"
	DocumentTypeInvoiceReceipt DocumentType = "invoice_receipt"
)

// DocumentTypes lists the enumeration in dropdown order
var DocumentTypes = []DocumentType{
	DocumentTypeInvoice,
	DocumentTypeReceipt,
	DocumentTypeInvoiceReceipt,
}

// Label returns the workbook display value
func (d DocumentType) Label() string {
	switch d {
	case DocumentTypeInvoice:
		return "Invoice"
	case DocumentTypeReceipt:
		return "Receipt"
	case DocumentTypeInvoiceReceipt:
		return "Invoice+Receipt"
	default:
		return string(d)
	}
}

// ParseDocumentType accepts the enum value, the workbook label and common spellings
func ParseDocumentType(s string) (DocumentType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "", "&", "+").Replace(normalized)

	switch normalized {
	case "invoice", "taxinvoice", "חשבונית", "חשבוניתמס":
		return DocumentTypeInvoice, nil
	case "receipt", "קבלה":
		return DocumentTypeReceipt, nil
	case "invoicereceipt", "invoice+receipt", "חשבונית+קבלה", "חשבוניתמס+קבלה", "חשבוניתמסקבלה":
		return DocumentTypeInvoiceReceipt, nil
	}
	return "", fmt.Errorf("unknown document type %q", s)
}

// ProcessingStatus tracks where a record came from
type ProcessingStatus string

const (
	StatusExtracted   ProcessingStatus = "Extracted"
	StatusFailed      ProcessingStatus = "Failed"
	StatusManualEntry ProcessingStatus = "ManualEntry"
)

// ParseProcessingStatus parses a status cell; blank means Extracted
func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "extracted":
		return StatusExtracted, nil
	case "failed":
		return StatusFailed, nil
	case "manualentry", "manual entry", "manual":
		return StatusManualEntry, nil
	}
	return "", fmt.Errorf("unknown processing status %q", s)
}

// Severity is the level of a validation annotation
type Severity string

const (
	SeverityOK      Severity = "OK"
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// Export document type codes
const (
	ExportCodeInvoice        = "305"
	ExportCodeInvoiceReceipt = "320"
	ExportCodeReceipt        = "400"
)

// Recognized VAT rates, in percent
var RecognizedVATRates = []float64{0, 18, 66}

const (
	// TotalsEpsilon is the tolerated currency difference between excl+VAT and incl
	TotalsEpsilon = "0.01"

	// VATRateEpsilon is the tolerated distance, in percentage points, from a recognized rate
	VATRateEpsilon = 0.1

	// DefaultBatchCapacity is the number of records per IR artifact
	DefaultBatchCapacity = 10

	// DateLayout is the canonical date format in artifacts and exports
	DateLayout = "2006-01-02"
)
