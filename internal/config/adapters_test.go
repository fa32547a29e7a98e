package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/consolidation"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_FeedComponents(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
extraction:
  concurrency: 2
  retry_base_delay: 500ms
export:
  format: CSV
  file_name: march
consolidation:
  category_map:
    Office Supplies: Office Expenses
  unmapped_policy: Fallback
  fallback_category: General
`))
	require.NoError(t, err)

	ext := cfg.ExtractionSettings()
	require.NoError(t, ext.Validate())
	assert.Equal(t, 2, ext.Concurrency)
	assert.Equal(t, 500*time.Millisecond, ext.Retry.BaseBackoff)
	assert.Equal(t, 3, ext.Retry.MaxAttempts)

	assert.Equal(t, "march.csv", cfg.ConsolidationSettings().ExportFile)
	assert.Equal(t, "documents", cfg.ConsolidationSettings().DocumentsDir)

	mapping := cfg.MapperSettings()
	assert.Equal(t, consolidation.PolicyFallback, mapping.Policy)
	_, err = consolidation.NewMapper(mapping, nil)
	require.NoError(t, err)

	v := cfg.ValidationSettings()
	assert.Equal(t, "0.01", v.TotalsEpsilon.String())
	assert.Equal(t, 10, cfg.WorkbookSettings().Capacity)
	assert.Equal(t, 2, cfg.AssetSettings().MaxPDFPages)
	assert.Equal(t, "data/receipts.db", cfg.DatabaseSettings().Path)
}

func TestShippedConfig_MapsEveryTaxonomyCategory(t *testing.T) {
	root := filepath.Join("..", "..")
	cfg, err := Load(filepath.Join(root, "configs", "config.yaml"))
	require.NoError(t, err)

	tax, err := taxonomy.Load(filepath.Join(root, cfg.Taxonomy.Path))
	require.NoError(t, err)

	// The reject policy refuses to start when a category has no mapping
	mapping := cfg.MapperSettings()
	mapping.Policy = consolidation.PolicyReject
	_, err = consolidation.NewMapper(mapping, tax)
	assert.NoError(t, err)
	assert.Equal(t, "xlsx", cfg.Export.Format)
}
