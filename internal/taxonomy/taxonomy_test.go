package taxonomy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `categories:
  - name: Office Supplies
    vat_deductible_pct: 100
    income_tax_deductible_pct: 100
  - name: Meals
    description: business meals
    vat_deductible_pct: 0
    income_tax_deductible_pct: 80
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tax, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Office Supplies", "Meals"}, tax.Names())
	assert.Contains(t, tax.PromptText(), "Meals: VAT deductible 0%, income tax deductible 80% (business meals)")
}

func TestLoad_Markdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.md")
	content := `# Categories

| Category | VAT | Tax |
|---|---|---|
| **Category** | **VAT** | **Tax** |
| **Fuel** | 66% | 45% |
| **Software** | 100% | 100% |
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tax, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"Fuel", "Software"}, tax.Names())
	assert.Equal(t, "66% | 45%", tax.Categories()[0].Description)
}

func TestLoad_MissingTaxonomyIsConfigError(t *testing.T) {
	_, err := Load("")
	var cfgErr *entity.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.True(t, errors.Is(err, entity.ErrTaxonomyMissing))

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.As(err, &cfgErr))

	_, err = New(nil)
	assert.True(t, errors.Is(err, entity.ErrTaxonomyMissing))
}

func TestNew_RejectsDuplicates(t *testing.T) {
	_, err := New([]Category{{Name: "Meals"}, {Name: " meals "}})
	assert.Error(t, err)
}

func TestTaxonomy_Resolve(t *testing.T) {
	tax, err := New([]Category{{Name: "Office Supplies"}, {Name: "Meals"}})
	require.NoError(t, err)

	name, ok := tax.Resolve("  office   supplies ")
	assert.True(t, ok)
	assert.Equal(t, "Office Supplies", name)

	_, ok = tax.Resolve("Travel")
	assert.False(t, ok)

	assert.True(t, tax.Contains("Meals"))
	assert.False(t, tax.Contains("meals"))
}
