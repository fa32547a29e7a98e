package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrRunNotFound is returned when no run matches the id
var ErrRunNotFound = errors.New("run not found")

// RunRepository implements port.RunRepository. The full summary is stored as
// YAML next to the columns used for listing.
type RunRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB, logger *zap.Logger) *RunRepository {
	return &RunRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts or replaces a run summary
func (r *RunRepository) Save(ctx context.Context, summary *entity.RunSummary) error {
	body, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO runs (
			id, stage, started_at, finished_at, total, succeeded, failed,
			total_amount, summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = getExecutor(ctx, r.db).ExecContext(ctx, query,
		summary.ID,
		summary.Stage,
		summary.StartedAt,
		summary.FinishedAt,
		summary.Total,
		summary.Succeeded,
		summary.Failed,
		summary.TotalAmount.String(),
		string(body),
	)
	if err != nil {
		r.logger.Error("Failed to save run summary", zap.String("run_id", summary.ID), zap.Error(err))
		return fmt.Errorf("failed to save run summary: %w", err)
	}
	return nil
}

// GetByID loads a run summary
func (r *RunRepository) GetByID(ctx context.Context, id string) (*entity.RunSummary, error) {
	var body string
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, `SELECT summary FROM runs WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run summary: %w", err)
	}
	return decodeSummary(body)
}

// ListRecent returns the latest runs of a stage, newest first. An empty stage lists all.
func (r *RunRepository) ListRecent(ctx context.Context, stage string, limit int) ([]*entity.RunSummary, error) {
	query := `SELECT summary FROM runs WHERE (? = '' OR stage = ?) ORDER BY started_at DESC LIMIT ?`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, stage, stage, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var summaries []*entity.RunSummary
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		summary, err := decodeSummary(body)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func decodeSummary(body string) (*entity.RunSummary, error) {
	var summary entity.RunSummary
	if err := yaml.Unmarshal([]byte(body), &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &summary, nil
}

// Verify interface compliance
var _ port.RunRepository = (*RunRepository)(nil)
