package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"go.uber.org/zap"
)

// ExtractionCallRepository implements port.CallLogRepository
type ExtractionCallRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExtractionCallRepository creates a new extraction call repository
func NewExtractionCallRepository(db *sql.DB, logger *zap.Logger) *ExtractionCallRepository {
	return &ExtractionCallRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts one attempt
func (r *ExtractionCallRepository) Create(ctx context.Context, call *entity.ExtractionCall) error {
	query := `
		INSERT INTO extraction_calls (
			run_id, asset_path, attempt, model, mime_type, request_bytes,
			prompt, response, error, success, prompt_tokens, completion_tokens,
			duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		call.RunID,
		call.AssetPath,
		call.Attempt,
		call.Model,
		call.MimeType,
		call.RequestBytes,
		call.Prompt,
		call.Response,
		call.Error,
		call.Success,
		call.PromptTokens,
		call.CompletionTokens,
		call.DurationMs,
		call.StartedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create extraction call", zap.String("asset_path", call.AssetPath), zap.Error(err))
		return fmt.Errorf("failed to create extraction call: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	call.ID = id
	return nil
}

// ListByRun returns every attempt of a run in insertion order
func (r *ExtractionCallRepository) ListByRun(ctx context.Context, runID string) ([]*entity.ExtractionCall, error) {
	query := `
		SELECT id, run_id, asset_path, attempt, model, mime_type, request_bytes,
			prompt, response, error, success, prompt_tokens, completion_tokens,
			duration_ms, started_at
		FROM extraction_calls
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, runID)
	if err != nil {
		r.logger.Error("Failed to list extraction calls", zap.String("run_id", runID), zap.Error(err))
		return nil, fmt.Errorf("failed to list extraction calls: %w", err)
	}
	defer rows.Close()

	var calls []*entity.ExtractionCall
	for rows.Next() {
		var call entity.ExtractionCall
		var model, mimeType, prompt, response, errMsg sql.NullString
		err := rows.Scan(
			&call.ID,
			&call.RunID,
			&call.AssetPath,
			&call.Attempt,
			&model,
			&mimeType,
			&call.RequestBytes,
			&prompt,
			&response,
			&errMsg,
			&call.Success,
			&call.PromptTokens,
			&call.CompletionTokens,
			&call.DurationMs,
			&call.StartedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan extraction call: %w", err)
		}
		call.Model = model.String
		call.MimeType = mimeType.String
		call.Prompt = prompt.String
		call.Response = response.String
		call.Error = errMsg.String
		calls = append(calls, &call)
	}

	return calls, rows.Err()
}

// Verify interface compliance
var _ port.CallLogRepository = (*ExtractionCallRepository)(nil)
