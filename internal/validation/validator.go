package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Date layouts accepted from the extraction service and from edited workbooks
var DateLayouts = []string{
	entity.DateLayout,
	"02/01/2006",
	"02.01.2006",
	"2006/01/02",
}

// Validator turns raw extraction responses into typed records
type Validator struct {
	validate *validator.Validate
	cfg      Config
	logger   *zap.Logger
}

// NewValidator creates a new Validator
func NewValidator(cfg Config, logger *zap.Logger) *Validator {
	v := validator.New()

	// Report JSON field names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// An absent money value validates like a nil pointer
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if m, ok := field.Interface().(money); ok && m.set {
			return m.raw
		}
		return nil
	}, money{})

	return &Validator{
		validate: v,
		cfg:      cfg,
		logger:   logger,
	}
}

// Parse validates a raw response and builds the record it describes.
// Any contract violation is returned as *entity.SchemaError.
func (v *Validator) Parse(raw string, sequence int, assetPath string) (*entity.ReceiptRecord, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, &entity.SchemaError{Reason: entity.ErrEmptyResponse.Error()}
	}

	var doc rawExtraction
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		// Fallback: the object may be wrapped in a code fence or prose
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, &entity.SchemaError{Reason: fmt.Sprintf("response is not a JSON object: %v", err)}
		}
		doc = rawExtraction{}
		if err := json.Unmarshal([]byte(jsonStr), &doc); err != nil {
			return nil, decodeError(err)
		}
		v.logger.Debug("Extracted JSON object from wrapped response", zap.String("asset_path", assetPath))
	}

	if err := v.validate.Struct(&doc); err != nil {
		return nil, fieldError(err)
	}

	return v.toRecord(&doc, sequence, assetPath)
}

// toRecord converts the validated document, parsing dates and money
func (v *Validator) toRecord(doc *rawExtraction, sequence int, assetPath string) (*entity.ReceiptRecord, error) {
	date, err := ParseDate(string(doc.ReceiptInfo.Date))
	if err != nil {
		return nil, &entity.SchemaError{Field: "receipt_info.date", Reason: err.Error()}
	}

	docType, err := entity.ParseDocumentType(string(doc.ReceiptInfo.DocumentType))
	if err != nil {
		return nil, &entity.SchemaError{Field: "receipt_info.document_type", Reason: err.Error()}
	}

	record := &entity.ReceiptRecord{
		Sequence:      sequence,
		ReceiptNumber: string(doc.ReceiptInfo.ReceiptNumber),
		VendorName:    string(doc.ReceiptInfo.Vendor),
		VendorTaxID:   string(doc.ReceiptInfo.VendorTaxID),
		Date:          date,
		DocumentType:  docType,
		SourceAsset:   assetPath,
		Classification: entity.Classification{
			Category: string(doc.Classification.Category),
		},
		Status: entity.StatusExtracted,
	}
	if doc.Classification.Confidence != nil {
		record.Classification.Confidence = *doc.Classification.Confidence
	}

	amounts := []struct {
		field  string
		source money
		target *decimal.Decimal
	}{
		{"amounts.total_excl_vat", doc.Amounts.TotalExclVAT, &record.Amounts.TotalExclVAT},
		{"amounts.vat_amount", doc.Amounts.VATAmount, &record.Amounts.VATAmount},
		{"amounts.total_incl_vat", doc.Amounts.TotalInclVAT, &record.Amounts.TotalInclVAT},
	}
	for _, a := range amounts {
		if *a.target, err = ParseMoney(a.source.raw); err != nil {
			return nil, &entity.SchemaError{Field: a.field, Reason: err.Error()}
		}
	}

	record.LineItems = make([]entity.LineItem, 0, len(doc.LineItems))
	for i, li := range doc.LineItems {
		item := entity.LineItem{
			Description: string(li.Description),
			Deductible:  true,
		}
		if li.Deductible != nil {
			item.Deductible = *li.Deductible
		}

		fields := []struct {
			name   string
			source money
			target *decimal.Decimal
		}{
			{"amount_excl_vat", li.AmountExclVAT, &item.AmountExclVAT},
			{"vat_amount", li.VATAmount, &item.VATAmount},
			{"total", li.Total, &item.Total},
		}
		for _, f := range fields {
			if *f.target, err = ParseMoney(f.source.raw); err != nil {
				return nil, &entity.SchemaError{Field: fmt.Sprintf("line_items[%d].%s", i, f.name), Reason: err.Error()}
			}
		}
		record.LineItems = append(record.LineItems, item)
	}

	record.Annotations = Annotate(record, v.cfg)
	return record, nil
}

// ParseMoney parses an amount, tolerating currency symbols and thousands separators
func ParseMoney(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.NewReplacer("₪", "", "$", "", "€", "", "ILS", "", ",", "", " ", "").Replace(cleaned)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// ParseDate parses a document date in any of the accepted layouts
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// fieldError converts the first validator failure into a SchemaError
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &entity.SchemaError{Reason: err.Error()}
	}

	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	reason := fmt.Sprintf("failed %q check", fe.Tag())
	if fe.Tag() == "required" {
		reason = "missing required field"
	}
	return &entity.SchemaError{Field: field, Reason: reason}
}

// decodeError converts a JSON decoding failure into a SchemaError
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &entity.SchemaError{
			Field:  typeErr.Field,
			Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}
	}
	return &entity.SchemaError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
}
