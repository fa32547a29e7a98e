package taxonomy

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"gopkg.in/yaml.v3"
)

// Category is one allowed expense category with its tax metadata
type Category struct {
	Name                   string  `yaml:"name"`
	Description            string  `yaml:"description"`
	VATDeductiblePct       float64 `yaml:"vat_deductible_pct"`
	IncomeTaxDeductiblePct float64 `yaml:"income_tax_deductible_pct"`
}

// Taxonomy is the fixed, ordered set of categories offered to the extraction
// service and to the reviewer's dropdown
type Taxonomy struct {
	categories []Category
	index      map[string]int
}

type taxonomyFile struct {
	Categories []Category `yaml:"categories"`
}

// markdownRow matches table rows whose first cell is a bold category name
var markdownRow = regexp.MustCompile(`^\|\s*\*\*([^*]+)\*\*\s*\|(.*)$`)

// Load reads a taxonomy from YAML (.yaml/.yml) or a markdown table (.md)
func Load(path string) (*Taxonomy, error) {
	if path == "" {
		return nil, &entity.ConfigError{Key: "taxonomy.path", Reason: "not set", Err: entity.ErrTaxonomyMissing}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &entity.ConfigError{Key: "taxonomy.path", Reason: "failed to read taxonomy", Err: err}
	}

	var categories []Category
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		categories = parseMarkdown(data)
	default:
		var file taxonomyFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, &entity.ConfigError{Key: "taxonomy.path", Reason: "failed to parse taxonomy", Err: err}
		}
		categories = file.Categories
	}

	return New(categories)
}

// New builds a taxonomy; it rejects an empty list and duplicate names
func New(categories []Category) (*Taxonomy, error) {
	if len(categories) == 0 {
		return nil, &entity.ConfigError{Key: "taxonomy", Reason: "no categories defined", Err: entity.ErrTaxonomyMissing}
	}

	t := &Taxonomy{index: make(map[string]int, len(categories))}
	for _, c := range categories {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, &entity.ConfigError{Key: "taxonomy", Reason: "category with empty name"}
		}
		key := normalize(c.Name)
		if _, dup := t.index[key]; dup {
			return nil, &entity.ConfigError{Key: "taxonomy", Reason: fmt.Sprintf("duplicate category %q", c.Name)}
		}
		t.index[key] = len(t.categories)
		t.categories = append(t.categories, c)
	}
	return t, nil
}

// parseMarkdown extracts categories from rows like "| **Meals** | 66% | ... |"
func parseMarkdown(data []byte) []Category {
	var categories []Category
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		m := markdownRow.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		// Header rows are sometimes bolded too
		if strings.EqualFold(name, "category") || strings.EqualFold(name, "קטגוריה") {
			continue
		}

		var cells []string
		for _, cell := range strings.Split(m[2], "|") {
			if cell = strings.TrimSpace(cell); cell != "" {
				cells = append(cells, cell)
			}
		}
		categories = append(categories, Category{Name: name, Description: strings.Join(cells, " | ")})
	}
	return categories
}

// Names returns category names in configured order
func (t *Taxonomy) Names() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Name
	}
	return names
}

// Categories returns a copy of the categories
func (t *Taxonomy) Categories() []Category {
	return append([]Category(nil), t.categories...)
}

// Contains reports whether name is exactly a configured category
func (t *Taxonomy) Contains(name string) bool {
	i, ok := t.index[normalize(name)]
	return ok && t.categories[i].Name == name
}

// Resolve maps free text to the canonical category name, ignoring case and spacing
func (t *Taxonomy) Resolve(value string) (string, bool) {
	i, ok := t.index[normalize(value)]
	if !ok {
		return "", false
	}
	return t.categories[i].Name, true
}

// PromptText renders the taxonomy as the text sent to the extraction service
func (t *Taxonomy) PromptText() string {
	var b strings.Builder
	b.WriteString("Allowed categories (use the name exactly as written):\n")
	for _, c := range t.categories {
		fmt.Fprintf(&b, "- %s: VAT deductible %.0f%%, income tax deductible %.0f%%",
			c.Name, c.VATDeductiblePct, c.IncomeTaxDeductiblePct)
		if c.Description != "" {
			fmt.Fprintf(&b, " (%s)", c.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
