package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReceiptRecord is one source document after extraction or review
type ReceiptRecord struct {
	// Sequence is the 0-based position in the original extraction order
	Sequence int `json:"sequence"`

	// RunID names the extraction run that produced the record; sequences
	// are only comparable within one run
	RunID string `json:"run_id,omitempty"`

	ReceiptNumber string       `json:"receipt_number"`
	VendorName    string       `json:"vendor_name"`
	VendorTaxID   string       `json:"vendor_tax_id"`
	Date          time.Time    `json:"date"`
	DocumentType  DocumentType `json:"document_type"`
	SourceAsset   string       `json:"source_asset"`

	Amounts        Amounts        `json:"amounts"`
	Classification Classification `json:"classification"`
	LineItems      []LineItem     `json:"line_items"`

	Status        ProcessingStatus `json:"status"`
	FailureReason string           `json:"failure_reason,omitempty"`
	RawPayload    string           `json:"raw_payload,omitempty"`

	Annotations []Annotation `json:"annotations,omitempty"`
}

// Amounts holds the three header totals
type Amounts struct {
	TotalExclVAT decimal.Decimal `json:"total_excl_vat"`
	VATAmount    decimal.Decimal `json:"vat_amount"`
	TotalInclVAT decimal.Decimal `json:"total_incl_vat"`
}

// Classification is the category assignment made during extraction
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// LineItem is a single row of a receipt
type LineItem struct {
	Description   string          `json:"description"`
	AmountExclVAT decimal.Decimal `json:"amount_excl_vat"`
	VATAmount     decimal.Decimal `json:"vat_amount"`
	Total         decimal.Decimal `json:"total"`
	Deductible    bool            `json:"deductible"`
	Notes         string          `json:"notes,omitempty"`
}

// VATRate returns VAT as a percentage of the excl-VAT amount
func (l LineItem) VATRate() (float64, bool) {
	return VATRate(l.AmountExclVAT, l.VATAmount)
}

// VATRate returns vat/excl*100; ok is false when excl is zero and vat is not
func VATRate(excl, vat decimal.Decimal) (float64, bool) {
	if excl.IsZero() {
		return 0, vat.IsZero()
	}
	return vat.Div(excl).Mul(decimal.NewFromInt(100)).InexactFloat64(), true
}

// NewFailedRecord builds the placeholder kept in place of a failed extraction
func NewFailedRecord(sequence int, assetPath string, reason, rawPayload string) *ReceiptRecord {
	return &ReceiptRecord{
		Sequence:      sequence,
		SourceAsset:   assetPath,
		Status:        StatusFailed,
		FailureReason: reason,
		RawPayload:    rawPayload,
	}
}

// IsFailed reports whether the record is an unfilled extraction placeholder
func (r *ReceiptRecord) IsFailed() bool {
	return r.Status == StatusFailed
}

// DocumentDate formats the record date, or returns "" when unknown
func (r *ReceiptRecord) DocumentDate() string {
	if r.Date.IsZero() {
		return ""
	}
	return r.Date.Format(DateLayout)
}

// HighestSeverity returns the most severe annotation on the record
func (r *ReceiptRecord) HighestSeverity() Severity {
	highest := SeverityOK
	for _, a := range r.Annotations {
		switch a.Severity {
		case SeverityError:
			return SeverityError
		case SeverityWarning:
			highest = SeverityWarning
		}
	}
	return highest
}

// String identifies the record in logs
func (r *ReceiptRecord) String() string {
	if r.ReceiptNumber != "" {
		return fmt.Sprintf("#%d %s (%s)", r.Sequence, r.ReceiptNumber, r.VendorName)
	}
	return fmt.Sprintf("#%d %s", r.Sequence, r.SourceAsset)
}
