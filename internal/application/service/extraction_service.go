package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/asset"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/internal/extraction"
	"github.com/garyjia/receipt-pipeline/internal/workbook"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExtractionService runs the extraction stage: source assets in, review workbooks out
type ExtractionService interface {
	Run(ctx context.Context, inputDir, outputDir string) (*entity.RunSummary, error)
}

// RecordExtractor extracts a list of assets into records, one result per path
type RecordExtractor interface {
	Run(ctx context.Context, paths []string) []extraction.Result
}

// ArtifactWriter writes records into review workbooks
type ArtifactWriter interface {
	WriteAll(ctx context.Context, records []entity.ReceiptRecord, outputDir string) ([]*workbook.WriteResult, error)
}

type extractionServiceImpl struct {
	extractor RecordExtractor
	writer    ArtifactWriter
	summaries *summaryRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewExtractionService creates a new ExtractionService; runs may be nil
func NewExtractionService(
	extractor RecordExtractor,
	writer ArtifactWriter,
	workspace port.Workspace,
	runs port.RunRepository,
	logger *zap.Logger,
) ExtractionService {
	return &extractionServiceImpl{
		extractor: extractor,
		writer:    writer,
		summaries: &summaryRecorder{workspace: workspace, runs: runs, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// Run scans inputDir, extracts every supported asset and writes the review
// workbooks into outputDir. Individual asset failures end up in the summary;
// an error is returned only when the input cannot be scanned or the
// workbooks cannot be written.
func (s *extractionServiceImpl) Run(ctx context.Context, inputDir, outputDir string) (*entity.RunSummary, error) {
	summary := &entity.RunSummary{
		ID:        uuid.NewString(),
		Stage:     entity.StageExtraction,
		StartedAt: s.now(),
	}
	logger := s.logger.With(zap.String("run_id", summary.ID))

	paths, err := asset.Scan(inputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}
	summary.Total = len(paths)
	if len(paths) == 0 {
		logger.Warn("No supported assets found", zap.String("input_dir", inputDir))
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("no supported assets in %s", inputDir))
	}

	results := s.extractor.Run(extraction.WithRunID(ctx, summary.ID), paths)

	records := make([]entity.ReceiptRecord, 0, len(results))
	totals := make(map[string]decimal.Decimal)
	for _, r := range results {
		rec := *r.Record
		rec.RunID = summary.ID
		records = append(records, rec)
		summary.Count("attempts", r.Attempts)

		if r.Err != nil {
			raw := r.Record.RawPayload
			var extErr *entity.ExtractionError
			if errors.As(r.Err, &extErr) && extErr.RawPayload != "" {
				raw = extErr.RawPayload
			}
			summary.AddFailure(r.Index, r.AssetPath, r.Err, raw)
			continue
		}

		summary.Succeeded++
		amount := r.Record.Amounts.TotalInclVAT
		summary.TotalAmount = summary.TotalAmount.Add(amount)
		category := r.Record.Classification.Category
		totals[category] = totals[category].Add(amount)
		for _, a := range r.Record.Annotations {
			switch a.Severity {
			case entity.SeverityError:
				summary.Count("annotation_errors", 1)
			case entity.SeverityWarning:
				summary.Count("annotation_warnings", 1)
			}
		}
	}
	summary.Categories = categoryTotals(totals)

	var writeErr error
	if len(records) > 0 {
		written, err := s.writer.WriteAll(ctx, records, outputDir)
		for _, w := range written {
			summary.Artifacts = append(summary.Artifacts, w.Path)
			summary.Count("flagged_categories", w.FlaggedCategories)
			summary.Count("image_failures", w.ImageFailures)
			summary.Count("truncated_records", w.TruncatedRecords)
		}
		if err != nil {
			writeErr = fmt.Errorf("failed to write review workbooks: %w", err)
			summary.Warnings = append(summary.Warnings, writeErr.Error())
		}
	}

	summary.FinishedAt = s.now()
	s.summaries.record(ctx, outputDir, summary)

	logger.Info("Extraction run finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("artifacts", len(summary.Artifacts)),
		zap.Duration("duration", summary.Duration()))

	return summary, writeErr
}
