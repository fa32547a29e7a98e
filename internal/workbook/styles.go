package workbook

import (
	"fmt"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/xuri/excelize/v2"
)

// styles holds the style ids registered in one workbook
type styles struct {
	label   int
	header  int
	money   int
	percent int
	text    int
	warning int
	err     int
	failed  int
	link    int
}

const (
	fillWarning = "FFEB9C"
	fontWarning = "9C5700"
	fillError   = "FFC7CE"
	fontError   = "9C0006"
	fillHeader  = "DDEBF7"
)

func newStyles(f *excelize.File) (*styles, error) {
	s := &styles{}
	defs := []struct {
		target *int
		style  *excelize.Style
	}{
		{&s.label, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&s.header, &excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Color: []string{fillHeader}, Pattern: 1},
		}},
		{&s.money, &excelize.Style{NumFmt: 4}},
		{&s.percent, &excelize.Style{CustomNumFmt: strPtr("0.00")}},
		{&s.text, &excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}}},
		{&s.warning, &excelize.Style{
			NumFmt: 4,
			Font:   &excelize.Font{Color: fontWarning},
			Fill:   excelize.Fill{Type: "pattern", Color: []string{fillWarning}, Pattern: 1},
		}},
		{&s.err, &excelize.Style{
			NumFmt: 4,
			Font:   &excelize.Font{Bold: true, Color: fontError},
			Fill:   excelize.Fill{Type: "pattern", Color: []string{fillError}, Pattern: 1},
		}},
		{&s.failed, &excelize.Style{
			Font: &excelize.Font{Bold: true, Color: fontError},
			Fill: excelize.Fill{Type: "pattern", Color: []string{fillError}, Pattern: 1},
		}},
		{&s.link, &excelize.Style{Font: &excelize.Font{Color: "1265BE", Underline: "single"}}},
	}

	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return nil, fmt.Errorf("failed to create style: %w", err)
		}
		*d.target = id
	}
	return s, nil
}

// forSeverity returns the style of an annotated value cell
func (s *styles) forSeverity(sev entity.Severity) (int, bool) {
	switch sev {
	case entity.SeverityError:
		return s.err, true
	case entity.SeverityWarning:
		return s.warning, true
	}
	return 0, false
}

func strPtr(s string) *string { return &s }
