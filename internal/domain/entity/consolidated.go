package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsolidatedEntry is one deductible line item projected into the export shape
type ConsolidatedEntry struct {
	SupplierID       string
	SupplierName     string
	ExpenseType      string
	Amount           decimal.Decimal
	Currency         string
	ExchangeRate     decimal.Decimal
	DocumentTypeCode string
	DocumentNumber   string
	DocumentDate     time.Time
	PaymentDate      time.Time
	Paid             string
	PaidOn           time.Time
	ReportingDate    time.Time
	Customer         string
	Project          string

	// Provenance, not exported
	Description    string
	SourceAsset    string
	RecordSequence int
	LineIndex      int // -1 for a whole-receipt entry
}
