package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// rawExtraction mirrors the JSON contract of the extraction service
type rawExtraction struct {
	ReceiptInfo    *rawReceiptInfo    `json:"receipt_info" validate:"required"`
	Amounts        *rawAmounts        `json:"amounts" validate:"required"`
	LineItems      []rawLineItem      `json:"line_items" validate:"dive"`
	Classification *rawClassification `json:"classification" validate:"required"`
}

type rawReceiptInfo struct {
	ReceiptNumber flexString `json:"receipt_number"`
	Vendor        trimmed    `json:"vendor" validate:"required"`
	VendorTaxID   flexString `json:"vendor_tax_id"`
	Date          trimmed    `json:"date" validate:"required"`
	DocumentType  trimmed    `json:"document_type" validate:"required"`
}

type rawAmounts struct {
	TotalExclVAT money `json:"total_excl_vat" validate:"required"`
	VATAmount    money `json:"vat_amount" validate:"required"`
	TotalInclVAT money `json:"total_incl_vat" validate:"required"`
}

type rawLineItem struct {
	Description   trimmed `json:"description" validate:"required"`
	AmountExclVAT money   `json:"amount_excl_vat" validate:"required"`
	VATAmount     money   `json:"vat_amount" validate:"required"`
	Total         money   `json:"total" validate:"required"`
	Deductible    *bool   `json:"deductible"`
}

type rawClassification struct {
	Category   trimmed  `json:"category" validate:"required"`
	Confidence *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

// money keeps the literal text of a JSON number or string so that the
// decimal conversion can report which field was malformed
type money struct {
	raw string
	set bool
}

func (m *money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		m.raw, m.set = s, true
		return nil
	}
	m.raw, m.set = string(data), true
	return nil
}

// flexString accepts a JSON string or number (receipt numbers often arrive as numbers)
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	*f = flexString(n.String())
	return nil
}

// trimmed is a JSON string with surrounding whitespace removed, so that a
// blank value fails the required check
type trimmed string

func (t *trimmed) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = trimmed(strings.TrimSpace(s))
	return nil
}
