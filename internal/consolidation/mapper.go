package consolidation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UnmappedPolicy decides what happens to a category missing from the lookup table
type UnmappedPolicy string

const (
	// PolicyPassthrough keeps the category text and adds a warning
	PolicyPassthrough UnmappedPolicy = "passthrough"
	// PolicyFallback uses Config.FallbackCategory and adds a warning
	PolicyFallback UnmappedPolicy = "fallback"
	// PolicyReject omits the record's entries and adds an issue
	PolicyReject UnmappedPolicy = "reject"
)

// surrogateNamespace seeds deterministic document ids for unnumbered receipts
var surrogateNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("receipt-pipeline/document"))

// Config holds the static mapping tables and export defaults
type Config struct {
	CategoryMap      map[string]string
	Policy           UnmappedPolicy
	FallbackCategory string
	Currency         string
	PaidStatus       string
	Customer         string
	Project          string
	IncludeItemless  bool
}

// Result is the ordered export projection plus what happened on the way
type Result struct {
	Entries        []entity.ConsolidatedEntry
	Warnings       []string
	Issues         []string
	CategoryTotals map[string]decimal.Decimal
	Total          decimal.Decimal

	Records       int
	Excluded      int // non-deductible line items
	Rejected      int // records omitted by the reject policy
	FailedRecords int
	Duplicates    int
}

// Mapper turns reviewed records into export entries. It performs no I/O.
type Mapper struct {
	cfg        Config
	categories map[string]string
}

// NewMapper validates the configuration. With the reject policy every taxonomy
// category must be mapped, so a gap is caught at startup instead of mid-run.
func NewMapper(cfg Config, tax *taxonomy.Taxonomy) (*Mapper, error) {
	if len(cfg.CategoryMap) == 0 {
		return nil, &entity.ConfigError{Key: "consolidation.category_map", Reason: "no category mappings defined"}
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyPassthrough
	}
	switch cfg.Policy {
	case PolicyPassthrough, PolicyReject:
	case PolicyFallback:
		if strings.TrimSpace(cfg.FallbackCategory) == "" {
			return nil, &entity.ConfigError{Key: "consolidation.fallback_category", Reason: "required by the fallback policy"}
		}
	default:
		return nil, &entity.ConfigError{Key: "consolidation.unmapped_policy", Reason: fmt.Sprintf("unknown policy %q", cfg.Policy)}
	}
	if cfg.Currency == "" {
		cfg.Currency = "ILS"
	}
	if cfg.PaidStatus == "" {
		cfg.PaidStatus = "paid"
	}

	// Keys may arrive lowercased from the config loader; match loosely
	categories := make(map[string]string, len(cfg.CategoryMap))
	for from, to := range cfg.CategoryMap {
		categories[normalize(from)] = strings.TrimSpace(to)
	}

	if cfg.Policy == PolicyReject && tax != nil {
		var missing []string
		for _, name := range tax.Names() {
			if _, ok := categories[normalize(name)]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return nil, &entity.ConfigError{
				Key:    "consolidation.category_map",
				Reason: fmt.Sprintf("reject policy leaves taxonomy categories unmapped: %s", strings.Join(missing, ", ")),
			}
		}
	}

	return &Mapper{cfg: cfg, categories: categories}, nil
}

// Map filters, maps, defaults and orders the records of all batches. Records
// are grouped by extraction run in order of first appearance, ordered by
// extraction sequence within a run; line items keep their position.
func (m *Mapper) Map(batches []entity.Batch) *Result {
	result := &Result{CategoryTotals: make(map[string]decimal.Decimal)}

	var records []entity.ReceiptRecord
	seen := make(map[string]bool)
	runOrder := make(map[string]int)
	for _, b := range batches {
		for _, r := range b.Records {
			if _, ok := runOrder[r.RunID]; !ok {
				runOrder[r.RunID] = len(runOrder)
			}
			key := fmt.Sprintf("%s|%d|%s|%s", r.RunID, r.Sequence, r.SourceAsset, r.ReceiptNumber)
			if seen[key] {
				result.Duplicates++
				result.Warnings = append(result.Warnings, fmt.Sprintf("record %s appears more than once; using the first copy", r.String()))
				continue
			}
			seen[key] = true
			records = append(records, r)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := runOrder[records[i].RunID], runOrder[records[j].RunID]
		if ri != rj {
			return ri < rj
		}
		return records[i].Sequence < records[j].Sequence
	})

	for i := range records {
		rec := &records[i]
		if rec.IsFailed() {
			result.FailedRecords++
			result.Warnings = append(result.Warnings, fmt.Sprintf("record %s was never extracted or filled in; skipped", rec.String()))
			continue
		}
		result.Records++

		expenseType, ok := m.mapCategory(rec, result)
		if !ok {
			result.Rejected++
			continue
		}

		header, err := m.header(rec, expenseType)
		if err != nil {
			result.Issues = append(result.Issues, fmt.Sprintf("record %s: %v", rec.String(), err))
			result.Rejected++
			continue
		}

		if len(rec.LineItems) == 0 {
			if m.cfg.IncludeItemless {
				entry := header
				entry.Amount = rec.Amounts.TotalInclVAT
				entry.Description = fmt.Sprintf("Receipt from %s", rec.VendorName)
				entry.LineIndex = -1
				m.add(result, entry)
			}
			continue
		}

		for li, item := range rec.LineItems {
			if !item.Deductible {
				result.Excluded++
				continue
			}
			entry := header
			entry.Amount = item.Total
			entry.Description = item.Description
			entry.LineIndex = li
			m.add(result, entry)
		}
	}

	return result
}

func (m *Mapper) add(result *Result, entry entity.ConsolidatedEntry) {
	result.Entries = append(result.Entries, entry)
	result.CategoryTotals[entry.ExpenseType] = result.CategoryTotals[entry.ExpenseType].Add(entry.Amount)
	result.Total = result.Total.Add(entry.Amount)
}

// mapCategory applies the lookup table and the unmapped policy
func (m *Mapper) mapCategory(rec *entity.ReceiptRecord, result *Result) (string, bool) {
	category := rec.Classification.Category
	if mapped, ok := m.categories[normalize(category)]; ok {
		return mapped, true
	}

	switch m.cfg.Policy {
	case PolicyFallback:
		result.Warnings = append(result.Warnings, fmt.Sprintf("record %s: category %q is not mapped; using %q", rec.String(), category, m.cfg.FallbackCategory))
		return m.cfg.FallbackCategory, true
	case PolicyReject:
		result.Issues = append(result.Issues, fmt.Sprintf("record %s: category %q is not mapped; record omitted", rec.String(), category))
		return "", false
	default:
		result.Warnings = append(result.Warnings, fmt.Sprintf("record %s: category %q is not mapped; exported as is", rec.String(), category))
		return category, true
	}
}

// header builds the fields every entry of a record shares
func (m *Mapper) header(rec *entity.ReceiptRecord, expenseType string) (entity.ConsolidatedEntry, error) {
	code, err := DocumentTypeCode(rec.DocumentType)
	if err != nil {
		return entity.ConsolidatedEntry{}, err
	}

	number := rec.ReceiptNumber
	if number == "" {
		number = SurrogateID(rec)
	}

	return entity.ConsolidatedEntry{
		SupplierID:       rec.VendorTaxID,
		SupplierName:     rec.VendorName,
		ExpenseType:      expenseType,
		Currency:         m.cfg.Currency,
		ExchangeRate:     decimal.NewFromInt(1),
		DocumentTypeCode: code,
		DocumentNumber:   number,
		DocumentDate:     rec.Date,
		PaymentDate:      rec.Date,
		Paid:             m.cfg.PaidStatus,
		PaidOn:           rec.Date,
		ReportingDate:    rec.Date,
		Customer:         m.cfg.Customer,
		Project:          m.cfg.Project,
		SourceAsset:      rec.SourceAsset,
		RecordSequence:   rec.Sequence,
	}, nil
}

// DocumentTypeCode maps a document type to its export code
func DocumentTypeCode(dt entity.DocumentType) (string, error) {
	switch dt {
	case entity.DocumentTypeInvoice:
		return entity.ExportCodeInvoice, nil
	case entity.DocumentTypeInvoiceReceipt:
		return entity.ExportCodeInvoiceReceipt, nil
	case entity.DocumentTypeReceipt:
		return entity.ExportCodeReceipt, nil
	}
	return "", fmt.Errorf("no export code for document type %q", dt)
}

// SurrogateID derives a stable document id from the source, date and sequence
func SurrogateID(rec *entity.ReceiptRecord) string {
	name := fmt.Sprintf("%s|%s|%d", rec.SourceAsset, rec.DocumentDate(), rec.Sequence)
	id := uuid.NewSHA1(surrogateNamespace, []byte(name))
	return "AUTO-" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
