package service

import (
	"context"
	"fmt"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SummaryFileName names the YAML summary a run leaves in its output directory
func SummaryFileName(summary *entity.RunSummary) string {
	return fmt.Sprintf("%s_summary_%s.yaml", summary.Stage, summary.StartedAt.Format("20060102_150405"))
}

// summaryRecorder persists finished run summaries. Persistence problems are
// reported as warnings, never as run failures.
type summaryRecorder struct {
	workspace port.Workspace
	runs      port.RunRepository
	logger    *zap.Logger
}

func (r *summaryRecorder) record(ctx context.Context, outputDir string, summary *entity.RunSummary) {
	logger := r.logger.With(zap.String("run_id", summary.ID), zap.String("stage", summary.Stage))

	if r.runs != nil {
		if err := r.runs.Save(ctx, summary); err != nil {
			logger.Warn("Failed to store run summary", zap.Error(err))
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("run summary not stored: %v", err))
		}
	}

	if r.workspace == nil || outputDir == "" {
		return
	}
	body, err := yaml.Marshal(summary)
	if err != nil {
		logger.Warn("Failed to encode run summary", zap.Error(err))
		return
	}
	name := SummaryFileName(summary)
	if err := r.workspace.Files(outputDir).Save(ctx, name, body); err != nil {
		logger.Warn("Failed to write run summary file", zap.String("file", name), zap.Error(err))
		return
	}
	logger.Info("Run summary written", zap.String("file", name))
}

// categoryTotals formats per-category amounts for the summary
func categoryTotals(totals map[string]decimal.Decimal) map[string]string {
	if len(totals) == 0 {
		return nil
	}
	out := make(map[string]string, len(totals))
	for name, amount := range totals {
		out[name] = amount.StringFixed(2)
	}
	return out
}
