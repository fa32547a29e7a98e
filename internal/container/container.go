package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/application/service"
	"github.com/garyjia/receipt-pipeline/internal/asset"
	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/garyjia/receipt-pipeline/internal/consolidation"
	"github.com/garyjia/receipt-pipeline/internal/export"
	"github.com/garyjia/receipt-pipeline/internal/extraction"
	infrastorage "github.com/garyjia/receipt-pipeline/internal/infrastructure/storage"
	"github.com/garyjia/receipt-pipeline/internal/storage"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/garyjia/receipt-pipeline/internal/validation"
	"github.com/garyjia/receipt-pipeline/internal/workbook"
	"go.uber.org/zap"
)

// Container owns the long-lived dependencies of one command invocation.
// Start opens them in order, Close releases them in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	data      *DatabaseBundle
	taxonomy  *taxonomy.Taxonomy
	workspace port.Workspace

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start loads the taxonomy and opens the database
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	// Step 1: taxonomy, so configuration mistakes surface before any I/O
	tax, err := ProvideTaxonomy(c.config.Taxonomy.Path, c.logger)
	if err != nil {
		return err
	}
	c.taxonomy = tax

	// Step 2: database and repositories
	data, err := ProvideDatabase(c.config.DatabaseSettings(), c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.data = data

	// Step 3: storage
	c.workspace = infrastorage.NewLocalWorkspace(c.logger)

	c.ready.Store(true)
	c.logger.Debug("Container started")
	return nil
}

// Close releases the database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	if c.data != nil && c.data.DB != nil {
		if err := c.data.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			return fmt.Errorf("close database: %w", err)
		}
	}
	return nil
}

// Taxonomy returns the loaded category taxonomy
func (c *Container) Taxonomy() *taxonomy.Taxonomy {
	return c.taxonomy
}

// Runs returns the run repository, or nil when the database is disabled
func (c *Container) Runs() port.RunRepository {
	if c.data == nil {
		return nil
	}
	return c.data.Runs
}

// ExtractionService builds the extraction stage for a run writing to outputDir
func (c *Container) ExtractionService(ctx context.Context, outputDir string) (service.ExtractionService, error) {
	if !c.ready.Load() {
		return nil, fmt.Errorf("container not started")
	}

	client, err := ProvideExtractionClient(c.config, c.logger)
	if err != nil {
		return nil, err
	}

	callLogger, callLogDir, err := ProvideCallLogger(ctx, c.config, c.data.Calls, c.workspace.Folders(outputDir))
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Extraction calls are logged", zap.String("dir", callLogDir))

	loader := asset.NewLoader(c.config.AssetSettings(), c.logger)
	orchestrator, err := extraction.NewOrchestrator(
		c.config.ExtractionSettings(),
		client,
		loader,
		validation.NewValidator(c.config.ValidationSettings(), c.logger),
		c.taxonomy.PromptText(),
		callLogger,
		c.logger,
	)
	if err != nil {
		return nil, err
	}

	writer, err := workbook.NewWriter(c.config.WorkbookSettings(), c.taxonomy, loader, c.logger)
	if err != nil {
		return nil, err
	}

	return service.NewExtractionService(orchestrator, writer, c.workspace, c.data.Runs, c.logger), nil
}

// ConsolidationService builds the consolidation stage for the given artifacts
func (c *Container) ConsolidationService(artifacts []string) (service.ConsolidationService, error) {
	if !c.ready.Load() {
		return nil, fmt.Errorf("container not started")
	}

	mapper, err := consolidation.NewMapper(c.config.MapperSettings(), c.taxonomy)
	if err != nil {
		return nil, err
	}

	return service.NewConsolidationService(
		c.config.ConsolidationSettings(),
		workbook.NewReader(c.taxonomy, c.config.ValidationSettings(), c.logger),
		mapper,
		export.NewWriter(c.logger),
		storage.NewOrganizer(ProvideSearchChain(c.config, artifacts), c.logger),
		c.workspace,
		c.data.Runs,
		c.logger,
	)
}
