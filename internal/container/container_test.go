package container

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const taxonomyYAML = `categories:
  - name: Office Supplies
    vat_deductible_pct: 100
  - name: Meals
    vat_deductible_pct: 0
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(taxonomyYAML), 0644))

	cfg := config.Default()
	cfg.Taxonomy.Path = path
	cfg.Database.Path = filepath.Join(dir, "data", "receipts.db")
	cfg.Consolidation.CategoryMap = map[string]string{"office supplies": "Office", "meals": "Refreshments"}
	cfg.OpenAI.APIKey = ""
	return cfg
}

func TestContainer_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	_, err = c.ConsolidationService(nil)
	assert.Error(t, err, "services need Start")

	require.NoError(t, c.Start(ctx))
	assert.Error(t, c.Start(ctx))
	assert.Equal(t, []string{"Office Supplies", "Meals"}, c.Taxonomy().Names())
	assert.NotNil(t, c.Runs())

	svc, err := c.ConsolidationService([]string{"/tmp/review/receipts_001.xlsx"})
	require.NoError(t, err)
	assert.NotNil(t, svc)

	_, err = c.ExtractionService(ctx, t.TempDir())
	var cfgErr *entity.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "openai.api_key", cfgErr.Key)

	require.NoError(t, c.Close())
	assert.Error(t, c.Close())
}

func TestContainer_ExtractionServiceCreatesCallLogFolder(t *testing.T) {
	cfg := testConfig(t)
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Database.Path = ""

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()
	assert.Nil(t, c.Runs())

	out := t.TempDir()
	svc, err := c.ExtractionService(context.Background(), out)
	require.NoError(t, err)
	assert.NotNil(t, svc)
	assert.DirExists(t, filepath.Join(out, callLogFolder))
}

func TestContainer_MissingTaxonomy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Taxonomy.Path = filepath.Join(t.TempDir(), "absent.yaml")

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)

	err = c.Start(context.Background())
	var cfgErr *entity.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "taxonomy.path", cfgErr.Key)
}

func TestProvideSearchChain(t *testing.T) {
	cfg := config.Default()
	cfg.Organizer.SearchDirs = []string{"/scans"}
	cfg.Organizer.RecursiveRoot = "/archive"

	chain := ProvideSearchChain(cfg, []string{"/review/receipts_001.xlsx", "/review/receipts_002.xlsx", "/scans/x.xlsx"})
	assert.Equal(t, []string{
		"exact path",
		"directory /scans",
		"directory /review",
		"stem in /scans",
		"stem in /review",
		"recursive /archive",
	}, chain.Searched())
}
