// Package container wires the pipeline components for one command invocation
package container

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/extraction"
	"github.com/garyjia/receipt-pipeline/internal/infrastructure/external/openai"
	"github.com/garyjia/receipt-pipeline/internal/infrastructure/persistence/repository"
	"github.com/garyjia/receipt-pipeline/internal/storage"
	"github.com/garyjia/receipt-pipeline/internal/taxonomy"
	"github.com/garyjia/receipt-pipeline/pkg/database"
	"go.uber.org/zap"
)

// callLogFolder is created in the output directory when no call log dir is configured
const callLogFolder = "logs"

// DatabaseBundle holds the database and the repositories on top of it
type DatabaseBundle struct {
	DB    *database.DB
	Runs  port.RunRepository
	Calls port.CallLogRepository
}

// ProvideDatabase opens the SQLite database, applies migrations and builds
// the repositories. An empty path disables persistence.
func ProvideDatabase(cfg database.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg.Path == "" {
		logger.Info("Database disabled; run summaries are written to files only")
		return &DatabaseBundle{}, nil
	}

	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &DatabaseBundle{
		DB:    db,
		Runs:  repository.NewRunRepository(db.DB, logger),
		Calls: repository.NewExtractionCallRepository(db.DB, logger),
	}, nil
}

// ProvideTaxonomy loads the category taxonomy
func ProvideTaxonomy(path string, logger *zap.Logger) (*taxonomy.Taxonomy, error) {
	tax, err := taxonomy.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Taxonomy loaded", zap.String("path", path), zap.Int("categories", len(tax.Names())))
	return tax, nil
}

// ProvideExtractionClient builds the vision model client
func ProvideExtractionClient(cfg *config.Config, logger *zap.Logger) (port.ExtractionService, error) {
	if err := cfg.ValidateExtraction(); err != nil {
		return nil, err
	}
	prompts, err := openai.LoadPrompts(cfg.OpenAI.PromptsPath)
	if err != nil {
		return nil, &entity.ConfigError{Key: "openai.prompts_path", Reason: "cannot load prompts", Err: err}
	}
	extractor, err := openai.NewExtractor(cfg.OpenAISettings(), prompts, logger)
	if err != nil {
		return nil, err
	}
	return extractor, nil
}

// ProvideCallLogger combines the database and file call loggers. Files go to
// the configured directory, or a logs folder inside outputDir.
func ProvideCallLogger(ctx context.Context, cfg *config.Config, calls port.CallLogRepository, folders port.FolderManager) (extraction.CallLogger, string, error) {
	dir := cfg.Extraction.CallLogDir
	if dir == "" {
		var err error
		if dir, err = folders.CreateFolder(ctx, callLogFolder); err != nil {
			return nil, "", fmt.Errorf("failed to create call log folder: %w", err)
		}
	}

	files, err := extraction.NewFileCallLogger(dir)
	if err != nil {
		return nil, "", err
	}

	loggers := extraction.MultiCallLogger{files}
	if calls != nil {
		loggers = append(loggers, extraction.NewRepositoryCallLogger(calls))
	}
	return loggers, files.Dir(), nil
}

// ProvideSearchChain builds the source document search order: configured
// directories first, then the directories of the artifacts being consolidated
func ProvideSearchChain(cfg *config.Config, artifacts []string) storage.Chain {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	for _, dir := range cfg.Organizer.SearchDirs {
		add(dir)
	}
	for _, a := range artifacts {
		add(filepath.Dir(a))
	}
	return storage.DefaultChain(dirs, cfg.Organizer.RecursiveRoot)
}
