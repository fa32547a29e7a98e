package consolidation

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func baseConfig() Config {
	return Config{
		// lowercased keys, as the config loader delivers them
		CategoryMap: map[string]string{
			"office supplies": "Office Expenses",
			"meals":           "Refreshments",
		},
		Policy:          PolicyPassthrough,
		Currency:        "ILS",
		PaidStatus:      "paid",
		IncludeItemless: true,
	}
}

func record(seq int, category string, deductible ...bool) entity.ReceiptRecord {
	rec := entity.ReceiptRecord{
		Sequence:       seq,
		ReceiptNumber:  "R-" + string(rune('A'+seq)),
		VendorName:     "Vendor",
		VendorTaxID:    "512345678",
		Date:           time.Date(2024, 5, 1+seq, 0, 0, 0, 0, time.UTC),
		DocumentType:   entity.DocumentTypeInvoice,
		SourceAsset:    "scans/r.pdf",
		Classification: entity.Classification{Category: category},
		Amounts:        entity.Amounts{TotalExclVAT: d("100"), VATAmount: d("18"), TotalInclVAT: d("118")},
		Status:         entity.StatusExtracted,
	}
	for i, ded := range deductible {
		rec.LineItems = append(rec.LineItems, entity.LineItem{
			Description: "item " + string(rune('a'+i)),
			Total:       d("10"),
			Deductible:  ded,
		})
	}
	return rec
}

func newMapper(t *testing.T, cfg Config) *Mapper {
	t.Helper()
	m, err := NewMapper(cfg, nil)
	require.NoError(t, err)
	return m
}

func TestMap_DeductibleFilterAndOrder(t *testing.T) {
	// Batches arrive out of order; sequence decides
	batches := []entity.Batch{
		{Number: 2, Records: []entity.ReceiptRecord{record(2, "Meals", true, false, true)}},
		{Number: 1, Records: []entity.ReceiptRecord{record(0, "Office Supplies", false, true), record(1, "Meals", true)}},
	}

	result := newMapper(t, baseConfig()).Map(batches)

	type key struct{ seq, line int }
	var got []key
	for _, e := range result.Entries {
		got = append(got, key{e.RecordSequence, e.LineIndex})
	}
	assert.Equal(t, []key{{0, 1}, {1, 0}, {2, 0}, {2, 2}}, got)
	assert.Equal(t, 2, result.Excluded)
	assert.Equal(t, 3, result.Records)
	assert.True(t, result.Total.Equal(d("40")))
	assert.True(t, result.CategoryTotals["Refreshments"].Equal(d("30")))
}

func TestMap_KeepsExtractionRunsTogether(t *testing.T) {
	fromRun := func(runID, vendor string, seq int) entity.ReceiptRecord {
		rec := record(seq, "Meals", true)
		rec.RunID = runID
		rec.VendorName = vendor
		return rec
	}

	// Two runs consolidated together; each run's sequences start at zero
	batches := []entity.Batch{
		{Number: 1, Records: []entity.ReceiptRecord{fromRun("run-b", "March", 1), fromRun("run-b", "March", 0)}},
		{Number: 2, Records: []entity.ReceiptRecord{fromRun("run-a", "April", 0), fromRun("run-a", "April", 1)}},
	}

	result := newMapper(t, baseConfig()).Map(batches)

	var got []string
	for _, e := range result.Entries {
		got = append(got, fmt.Sprintf("%s#%d", e.SupplierName, e.RecordSequence))
	}
	assert.Equal(t, []string{"March#0", "March#1", "April#0", "April#1"}, got)
	assert.Zero(t, result.Duplicates)
}

func TestMap_Defaults(t *testing.T) {
	rec := record(0, "Office Supplies", true)
	rec.DocumentType = entity.DocumentTypeInvoiceReceipt
	cfg := baseConfig()
	cfg.Customer = "Acme"

	result := newMapper(t, cfg).Map([]entity.Batch{{Number: 1, Records: []entity.ReceiptRecord{rec}}})
	require.Len(t, result.Entries, 1)
	e := result.Entries[0]

	assert.Equal(t, "Office Expenses", e.ExpenseType)
	assert.Equal(t, "320", e.DocumentTypeCode)
	assert.Equal(t, "ILS", e.Currency)
	assert.True(t, e.ExchangeRate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "paid", e.Paid)
	assert.Equal(t, rec.Date, e.PaymentDate)
	assert.Equal(t, rec.Date, e.PaidOn)
	assert.Equal(t, rec.Date, e.ReportingDate)
	assert.Equal(t, "512345678", e.SupplierID)
	assert.Equal(t, "Acme", e.Customer)
	assert.Equal(t, rec.ReceiptNumber, e.DocumentNumber)
}

func TestMap_DocumentTypeCodes(t *testing.T) {
	tests := []struct {
		dt   entity.DocumentType
		want string
	}{
		{entity.DocumentTypeInvoice, "305"},
		{entity.DocumentTypeInvoiceReceipt, "320"},
		{entity.DocumentTypeReceipt, "400"},
	}
	for _, tt := range tests {
		got, err := DocumentTypeCode(tt.dt)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	_, err := DocumentTypeCode("memo")
	assert.Error(t, err)
}

func TestMap_SurrogateIDIsStable(t *testing.T) {
	rec := record(4, "Meals", true)
	rec.ReceiptNumber = ""

	first := newMapper(t, baseConfig()).Map([]entity.Batch{{Number: 1, Records: []entity.ReceiptRecord{rec}}})
	second := newMapper(t, baseConfig()).Map([]entity.Batch{{Number: 1, Records: []entity.ReceiptRecord{rec}}})

	id := first.Entries[0].DocumentNumber
	assert.True(t, strings.HasPrefix(id, "AUTO-"))
	assert.Len(t, id, len("AUTO-")+8)
	assert.Equal(t, id, second.Entries[0].DocumentNumber)

	other := rec
	other.Sequence = 5
	assert.NotEqual(t, id, SurrogateID(&other))
}

func TestMap_UnmappedPolicies(t *testing.T) {
	batches := []entity.Batch{{Number: 1, Records: []entity.ReceiptRecord{record(0, "Parking", true), record(1, "Meals", true)}}}

	t.Run("passthrough", func(t *testing.T) {
		result := newMapper(t, baseConfig()).Map(batches)
		require.Len(t, result.Entries, 2)
		assert.Equal(t, "Parking", result.Entries[0].ExpenseType)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("fallback", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Policy = PolicyFallback
		cfg.FallbackCategory = "General"
		result := newMapper(t, cfg).Map(batches)
		require.Len(t, result.Entries, 2)
		assert.Equal(t, "General", result.Entries[0].ExpenseType)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("reject", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Policy = PolicyReject
		result := newMapper(t, cfg).Map(batches)
		require.Len(t, result.Entries, 1)
		assert.Equal(t, "Refreshments", result.Entries[0].ExpenseType)
		assert.Len(t, result.Issues, 1)
		assert.Equal(t, 1, result.Rejected)
	})
}

func TestMap_ItemlessFailedAndDuplicates(t *testing.T) {
	itemless := record(0, "Meals")
	failed := *entity.NewFailedRecord(1, "scans/bad.pdf", "timeout", "")
	dup := record(2, "Meals", true)

	batches := []entity.Batch{
		{Number: 1, Records: []entity.ReceiptRecord{itemless, failed, dup}},
		{Number: 2, Records: []entity.ReceiptRecord{dup}},
	}

	result := newMapper(t, baseConfig()).Map(batches)
	require.Len(t, result.Entries, 2)
	assert.Equal(t, -1, result.Entries[0].LineIndex)
	assert.True(t, result.Entries[0].Amount.Equal(d("118")))
	assert.Equal(t, "Receipt from Vendor", result.Entries[0].Description)
	assert.Equal(t, 1, result.FailedRecords)
	assert.Equal(t, 1, result.Duplicates)

	cfg := baseConfig()
	cfg.IncludeItemless = false
	result = newMapper(t, cfg).Map(batches)
	assert.Len(t, result.Entries, 1)
}

func TestNewMapper_ConfigErrors(t *testing.T) {
	tax, err := taxonomy.New([]taxonomy.Category{{Name: "Office Supplies"}, {Name: "Meals"}, {Name: "Fuel"}})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"empty map", func(c *Config) { c.CategoryMap = nil }, "consolidation.category_map"},
		{"unknown policy", func(c *Config) { c.Policy = "ignore" }, "consolidation.unmapped_policy"},
		{"fallback without category", func(c *Config) { c.Policy = PolicyFallback }, "consolidation.fallback_category"},
		{"reject with unmapped taxonomy category", func(c *Config) { c.Policy = PolicyReject }, "consolidation.category_map"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(&cfg)
			_, err := NewMapper(cfg, tax)
			var cfgErr *entity.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}
