package port

import (
	"context"

	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
)

// CallLogRepository persists one row per extraction attempt
type CallLogRepository interface {
	Create(ctx context.Context, call *entity.ExtractionCall) error
	ListByRun(ctx context.Context, runID string) ([]*entity.ExtractionCall, error)
}

// RunRepository persists run summaries
type RunRepository interface {
	Save(ctx context.Context, summary *entity.RunSummary) error
	GetByID(ctx context.Context, id string) (*entity.RunSummary, error)
	ListRecent(ctx context.Context, stage string, limit int) ([]*entity.RunSummary, error)
}
