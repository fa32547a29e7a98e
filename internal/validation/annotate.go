package validation

import (
	"fmt"
	"math"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// Config holds the tolerances used when annotating records
type Config struct {
	TotalsEpsilon  decimal.Decimal
	VATRateEpsilon float64
	VATRates       []float64
}

// DefaultConfig returns the standard tolerances and recognized VAT rates
func DefaultConfig() Config {
	return Config{
		TotalsEpsilon:  decimal.RequireFromString(entity.TotalsEpsilon),
		VATRateEpsilon: entity.VATRateEpsilon,
		VATRates:       append([]float64(nil), entity.RecognizedVATRates...),
	}
}

// Annotate derives the advisory annotations for a record. It never modifies
// the record; callers decide where to store the result.
func Annotate(record *entity.ReceiptRecord, cfg Config) []entity.Annotation {
	if record == nil || record.IsFailed() {
		return nil
	}

	var annotations []entity.Annotation

	if a, ok := checkTotals(record.Amounts, cfg); ok {
		annotations = append(annotations, a)
	}

	if msg, ok := checkVATRate(record.Amounts.TotalExclVAT, record.Amounts.VATAmount, cfg); !ok {
		annotations = append(annotations, entity.HeaderAnnotation(entity.FieldVATRate, entity.SeverityWarning, msg))
	}

	for i, item := range record.LineItems {
		if msg, ok := checkVATRate(item.AmountExclVAT, item.VATAmount, cfg); !ok {
			annotations = append(annotations, entity.LineAnnotation(entity.FieldLineVAT, i, entity.SeverityWarning, msg))
		}
	}

	if len(annotations) == 0 {
		annotations = append(annotations, entity.HeaderAnnotation(entity.FieldTotals, entity.SeverityOK, ""))
	}
	return annotations
}

// checkTotals flags excl + VAT differing from incl by more than the epsilon
func checkTotals(amounts entity.Amounts, cfg Config) (entity.Annotation, bool) {
	diff := amounts.TotalExclVAT.Add(amounts.VATAmount).Sub(amounts.TotalInclVAT).Abs()
	if diff.LessThanOrEqual(cfg.TotalsEpsilon) {
		return entity.Annotation{}, false
	}
	msg := fmt.Sprintf("Error: %s + %s = %s, expected %s (off by %s)",
		amounts.TotalExclVAT.StringFixed(2),
		amounts.VATAmount.StringFixed(2),
		amounts.TotalExclVAT.Add(amounts.VATAmount).StringFixed(2),
		amounts.TotalInclVAT.StringFixed(2),
		diff.StringFixed(2))
	return entity.HeaderAnnotation(entity.FieldTotals, entity.SeverityError, msg), true
}

// checkVATRate reports whether the rate lies within epsilon of a recognized rate
func checkVATRate(excl, vat decimal.Decimal, cfg Config) (string, bool) {
	rate, defined := entity.VATRate(excl, vat)
	if !defined {
		return fmt.Sprintf("Warning: VAT %s without a base amount", vat.StringFixed(2)), false
	}
	if IsRecognizedRate(rate, cfg) {
		return "", true
	}
	return fmt.Sprintf("Warning: VAT rate %.2f%% is not a recognized rate", rate), false
}

// IsRecognizedRate reports whether rate is within epsilon of a configured rate
func IsRecognizedRate(rate float64, cfg Config) bool {
	for _, r := range cfg.VATRates {
		if math.Abs(rate-r) <= cfg.VATRateEpsilon {
			return true
		}
	}
	return false
}
