package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/consolidation"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/storage"
	"github.com/garyjia/receipt-pipeline/internal/workbook"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConsolidationService runs the consolidation stage: reviewed workbooks in,
// one accounting import file and an organized document folder out
type ConsolidationService interface {
	Run(ctx context.Context, artifacts []string, outputDir string) (*entity.RunSummary, error)
}

// ConsolidationConfig names the outputs of a consolidation run
type ConsolidationConfig struct {
	// ExportFile is relative to the output directory; its extension picks the format
	ExportFile string
	// DocumentsDir is the folder for renamed source documents; empty skips organizing
	DocumentsDir string
}

// ArtifactReader reads reviewed workbooks back into batches
type ArtifactReader interface {
	ReadAll(ctx context.Context, paths []string) ([]entity.Batch, []error)
}

// EntryMapper projects reviewed records onto export entries
type EntryMapper interface {
	Map(batches []entity.Batch) *consolidation.Result
}

// EntryExporter writes the accounting import file
type EntryExporter interface {
	Write(ctx context.Context, entries []entity.ConsolidatedEntry, path string) error
}

// DocumentOrganizer copies source documents next to the export
type DocumentOrganizer interface {
	Organize(ctx context.Context, entries []entity.ConsolidatedEntry, dest port.FileStorage) *storage.OrganizeReport
}

type consolidationServiceImpl struct {
	cfg       ConsolidationConfig
	reader    ArtifactReader
	mapper    EntryMapper
	exporter  EntryExporter
	organizer DocumentOrganizer
	workspace port.Workspace
	summaries *summaryRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewConsolidationService creates a new ConsolidationService; organizer and runs may be nil
func NewConsolidationService(
	cfg ConsolidationConfig,
	reader ArtifactReader,
	mapper EntryMapper,
	exporter EntryExporter,
	organizer DocumentOrganizer,
	workspace port.Workspace,
	runs port.RunRepository,
	logger *zap.Logger,
) (ConsolidationService, error) {
	if cfg.ExportFile == "" {
		return nil, &entity.ConfigError{Key: "consolidation.export_file", Reason: "must not be empty"}
	}
	return &consolidationServiceImpl{
		cfg:       cfg,
		reader:    reader,
		mapper:    mapper,
		exporter:  exporter,
		organizer: organizer,
		workspace: workspace,
		summaries: &summaryRecorder{workspace: workspace, runs: runs, logger: logger},
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run reads the artifacts, maps every deductible line item and writes the
// import file. Malformed pages and unmapped categories are reported in the
// summary; an error is returned only when the import file cannot be written.
func (s *consolidationServiceImpl) Run(ctx context.Context, artifacts []string, outputDir string) (*entity.RunSummary, error) {
	summary := &entity.RunSummary{
		ID:        uuid.NewString(),
		Stage:     entity.StageConsolidation,
		StartedAt: s.now(),
	}
	logger := s.logger.With(zap.String("run_id", summary.ID))

	batches, readErrs := s.reader.ReadAll(ctx, artifacts)
	for i, err := range readErrs {
		if workbook.IsFailedPlaceholder(err) {
			summary.Count("unfilled_placeholders", 1)
		}
		summary.AddFailure(i, failedItem(err), err, "")
	}

	result := s.mapper.Map(batches)
	for _, b := range batches {
		summary.Total += len(b.Records)
	}
	summary.Total += len(readErrs)
	summary.Succeeded = result.Records - result.Rejected
	for i, issue := range result.Issues {
		summary.AddFailure(i, "mapping", errors.New(issue), "")
	}
	summary.Warnings = append(summary.Warnings, result.Warnings...)
	summary.Categories = categoryTotals(result.CategoryTotals)
	summary.TotalAmount = result.Total
	summary.Count("entries", len(result.Entries))
	summary.Count("excluded_lines", result.Excluded)
	summary.Count("duplicates", result.Duplicates)

	exportPath := filepath.Join(outputDir, s.cfg.ExportFile)
	var exportErr error
	if err := s.exporter.Write(ctx, result.Entries, exportPath); err != nil {
		exportErr = fmt.Errorf("failed to write export: %w", err)
		summary.Warnings = append(summary.Warnings, exportErr.Error())
	} else {
		summary.Artifacts = append(summary.Artifacts, exportPath)
	}

	if s.organizer != nil && s.cfg.DocumentsDir != "" && len(result.Entries) > 0 {
		s.organize(ctx, result.Entries, outputDir, summary)
	}

	summary.FinishedAt = s.now()
	s.summaries.record(ctx, outputDir, summary)

	logger.Info("Consolidation run finished",
		zap.Int("artifacts", len(artifacts)),
		zap.Int("records", summary.Total),
		zap.Int("entries", len(result.Entries)),
		zap.Int("failed", summary.Failed),
		zap.String("total", result.Total.StringFixed(2)))

	return summary, exportErr
}

func (s *consolidationServiceImpl) organize(ctx context.Context, entries []entity.ConsolidatedEntry, outputDir string, summary *entity.RunSummary) {
	dir, err := s.workspace.Folders(outputDir).CreateFolder(ctx, s.cfg.DocumentsDir)
	if err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("documents folder not created: %v", err))
		return
	}

	report := s.organizer.Organize(ctx, entries, s.workspace.Files(dir))
	summary.Count("documents_copied", len(report.Copied))
	for _, f := range report.Failures {
		var notFound *entity.AssetNotFoundError
		if errors.As(f.Err, &notFound) {
			summary.Count("documents_missing", 1)
		}
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("document %s: %v", f.DocumentNumber, f.Err))
	}
}

func failedItem(err error) string {
	var parseErr *entity.IRParseError
	if errors.As(err, &parseErr) {
		return fmt.Sprintf("%s[%s]", parseErr.Artifact, parseErr.Sheet)
	}
	return "artifact"
}
