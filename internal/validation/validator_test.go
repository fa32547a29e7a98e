package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validResponse = `{
  "receipt_info": {
    "receipt_number": 10234,
    "vendor": "Office Depot",
    "vendor_tax_id": "514321987",
    "date": "2025-03-14",
    "document_type": "invoice_receipt"
  },
  "amounts": {"total_excl_vat": 100.00, "vat_amount": "18.00", "total_incl_vat": 118.00},
  "line_items": [
    {"description": "Printer paper", "amount_excl_vat": 60, "vat_amount": 10.8, "total": 70.8},
    {"description": "Coffee", "amount_excl_vat": 40, "vat_amount": 7.2, "total": 47.2, "deductible": false}
  ],
  "classification": {"category": "Office Supplies", "confidence": 0.92}
}`

func newTestValidator() *Validator {
	return NewValidator(DefaultConfig(), zap.NewNop())
}

func TestValidator_Parse(t *testing.T) {
	v := newTestValidator()

	t.Run("parses a well-formed response", func(t *testing.T) {
		record, err := v.Parse(validResponse, 3, "in/receipt.jpg")
		require.NoError(t, err)

		assert.Equal(t, 3, record.Sequence)
		assert.Equal(t, "10234", record.ReceiptNumber)
		assert.Equal(t, "Office Depot", record.VendorName)
		assert.Equal(t, "514321987", record.VendorTaxID)
		assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), record.Date)
		assert.Equal(t, entity.DocumentTypeInvoiceReceipt, record.DocumentType)
		assert.Equal(t, "in/receipt.jpg", record.SourceAsset)
		assert.Equal(t, entity.StatusExtracted, record.Status)
		assert.True(t, decimal.NewFromInt(118).Equal(record.Amounts.TotalInclVAT))
		assert.Equal(t, "Office Supplies", record.Classification.Category)
		assert.InDelta(t, 0.92, record.Classification.Confidence, 1e-9)

		require.Len(t, record.LineItems, 2)
		assert.Equal(t, "Printer paper", record.LineItems[0].Description)
		assert.True(t, record.LineItems[0].Deductible, "deductible defaults to true")
		assert.False(t, record.LineItems[1].Deductible)
		assert.True(t, decimal.RequireFromString("10.8").Equal(record.LineItems[0].VATAmount))

		require.Len(t, record.Annotations, 1)
		assert.Equal(t, entity.SeverityOK, record.Annotations[0].Severity)
	})

	t.Run("accepts a response wrapped in a code fence", func(t *testing.T) {
		record, err := v.Parse("Here you go:\n```json\n"+validResponse+"\n```", 0, "a.png")
		require.NoError(t, err)
		assert.Equal(t, "Office Depot", record.VendorName)
	})

	t.Run("keeps extracted values even when totals disagree", func(t *testing.T) {
		raw := `{"receipt_info":{"vendor":"X","date":"14/03/2025","document_type":"receipt"},
			"amounts":{"total_excl_vat":100,"vat_amount":18,"total_incl_vat":120},
			"line_items":[],"classification":{"category":"Other"}}`

		record, err := v.Parse(raw, 0, "a.png")
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(120).Equal(record.Amounts.TotalInclVAT))
		assert.Equal(t, entity.SeverityError, record.HighestSeverity())
		assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), record.Date)
	})
}

func TestValidator_Parse_SchemaErrors(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name  string
		raw   string
		field string
	}{
		{
			name:  "empty response",
			raw:   "   ",
			field: "",
		},
		{
			name:  "not json",
			raw:   "I could not read this receipt",
			field: "",
		},
		{
			name:  "missing amounts group",
			raw:   `{"receipt_info":{"vendor":"X","date":"2025-01-01","document_type":"receipt"},"classification":{"category":"Other"}}`,
			field: "amounts",
		},
		{
			name:  "missing vendor",
			raw:   `{"receipt_info":{"date":"2025-01-01","document_type":"receipt"},"amounts":{"total_excl_vat":1,"vat_amount":0,"total_incl_vat":1},"classification":{"category":"Other"}}`,
			field: "receipt_info.vendor",
		},
		{
			name:  "null amount",
			raw:   `{"receipt_info":{"vendor":"X","date":"2025-01-01","document_type":"receipt"},"amounts":{"total_excl_vat":1,"vat_amount":null,"total_incl_vat":1},"classification":{"category":"Other"}}`,
			field: "amounts.vat_amount",
		},
		{
			name:  "malformed amount",
			raw:   `{"receipt_info":{"vendor":"X","date":"2025-01-01","document_type":"receipt"},"amounts":{"total_excl_vat":"abc","vat_amount":0,"total_incl_vat":1},"classification":{"category":"Other"}}`,
			field: "amounts.total_excl_vat",
		},
		{
			name:  "line item without total",
			raw:   `{"receipt_info":{"vendor":"X","date":"2025-01-01","document_type":"receipt"},"amounts":{"total_excl_vat":1,"vat_amount":0,"total_incl_vat":1},"line_items":[{"description":"a","amount_excl_vat":1,"vat_amount":0,"total":1},{"description":"b","amount_excl_vat":1,"vat_amount":0}],"classification":{"category":"Other"}}`,
			field: "line_items[1].total",
		},
		{
			name:  "blank vendor",
			raw:   `{"receipt_info":{"vendor":"   ","date":"2025-01-01","document_type":"receipt"},"amounts":{"total_excl_vat":1,"vat_amount":0,"total_incl_vat":1},"classification":{"category":"Other"}}`,
			field: "receipt_info.vendor",
		},
		{
			name:  "blank line item description",
			raw:   `{"receipt_info":{"vendor":"X","date":"2025-01-01","document_type":"receipt"},"amounts":{"total_excl_vat":3,"vat_amount":0,"total_incl_vat":3},"line_items":[{"description":"a","amount_excl_vat":1,"vat_amount":0,"total":1},{"description":"   ","amount_excl_vat":1,"vat_amount":0,"total":1},{"description":"c","amount_excl_vat":1,"vat_amount":0,"total":1}],"classification":{"category":"Other"}}`,
			field: "line_items[1].description",
		},
		{
			name:  "malformed date",
			raw:   `{"receipt_info":{"vendor":"X","date":"March 2025","document_type":"receipt"},"amounts":{"total_excl_vat":1,"vat_amount":0,"total_incl_vat":1},"classification":{"category":"Other"}}`,
			field: "receipt_info.date",
		},
		{
			name:  "unknown document type",
			raw:   `{"receipt_info":{"vendor":"X","date":"2025-01-01","document_type":"credit note"},"amounts":{"total_excl_vat":1,"vat_amount":0,"total_incl_vat":1},"classification":{"category":"Other"}}`,
			field: "receipt_info.document_type",
		},
		{
			name:  "confidence out of range",
			raw:   `{"receipt_info":{"vendor":"X","date":"2025-01-01","document_type":"receipt"},"amounts":{"total_excl_vat":1,"vat_amount":0,"total_incl_vat":1},"classification":{"category":"Other","confidence":7}}`,
			field: "classification.confidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := v.Parse(tt.raw, 0, "a.jpg")
			require.Error(t, err)
			assert.Nil(t, record)

			var schemaErr *entity.SchemaError
			require.True(t, errors.As(err, &schemaErr), "expected SchemaError, got %T", err)
			assert.Equal(t, tt.field, schemaErr.Field)
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"12.50", "12.5"},
		{"₪1,234.00", "1234"},
		{" 7 ", "7"},
		{"-3.10", "-3.1"},
	}
	for _, tt := range tests {
		d, err := ParseMoney(tt.input)
		require.NoError(t, err, tt.input)
		assert.True(t, decimal.RequireFromString(tt.expected).Equal(d), tt.input)
	}

	_, err := ParseMoney("twelve")
	assert.Error(t, err)
	_, err = ParseMoney("")
	assert.Error(t, err)
}
