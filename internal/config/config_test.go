package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := writeConfig(t, `
extraction:
  concurrency: 3
workbook:
  receipts_per_file: 4
consolidation:
  category_map:
    Office Supplies: Office
  unmapped_policy: fallback
  fallback_category: General
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 3, cfg.Extraction.Concurrency)
	assert.Equal(t, 3, cfg.Extraction.MaxAttempts)
	assert.Equal(t, 8*time.Second, cfg.Extraction.RetryMaxDelay)
	assert.Equal(t, 4, cfg.Workbook.ReceiptsPerFile)
	assert.Equal(t, "ILS", cfg.Consolidation.Currency)
	assert.True(t, cfg.Consolidation.IncludeItemless)
	assert.Equal(t, "fallback", cfg.Consolidation.UnmappedPolicy)
	assert.Len(t, cfg.Validation.VATRates, 3)
	assert.NoError(t, cfg.ValidateExtraction())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		key     string
	}{
		{name: "zero concurrency", content: "extraction:\n  concurrency: 0\n", key: "extraction.concurrency"},
		{name: "negative capacity", content: "workbook:\n  receipts_per_file: -1\n", key: "workbook.receipts_per_file"},
		{name: "unknown export format", content: "export:\n  format: pdf\n", key: "export.format"},
		{name: "bad epsilon", content: "validation:\n  totals_epsilon: abc\n", key: "validation.totals_epsilon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			var cfgErr *entity.ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfgErr *entity.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestValidateExtraction_RequiresAPIKey(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.APIKey = ""
	assert.Error(t, cfg.ValidateExtraction())
}
