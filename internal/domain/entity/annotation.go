package entity

// Annotated fields
const (
	FieldTotals   = "totals"
	FieldVATRate  = "vat_rate"
	FieldLineVAT  = "line_vat_rate"
	FieldCategory = "category"
)

// Annotation is a derived, advisory tag on one field of a record.
// LineIndex is -1 for header fields.
type Annotation struct {
	Field     string   `json:"field"`
	LineIndex int      `json:"line_index"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

// HeaderAnnotation builds an annotation on a header field
func HeaderAnnotation(field string, severity Severity, message string) Annotation {
	return Annotation{Field: field, LineIndex: -1, Severity: severity, Message: message}
}

// LineAnnotation builds an annotation on a line item field
func LineAnnotation(field string, lineIndex int, severity Severity, message string) Annotation {
	return Annotation{Field: field, LineIndex: lineIndex, Severity: severity, Message: message}
}

// IsHeader reports whether the annotation targets the header block
func (a Annotation) IsHeader() bool {
	return a.LineIndex < 0
}
