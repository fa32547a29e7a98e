package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/internal/domain/entity"
	"github.com/garyjia/receipt-pipeline/pkg/utils"
	"gopkg.in/yaml.v3"
)

// CallLogger records one extraction attempt
type CallLogger interface {
	LogCall(ctx context.Context, call *entity.ExtractionCall) error
}

// MultiCallLogger fans a call out to several loggers; every logger is tried
type MultiCallLogger []CallLogger

// LogCall implements CallLogger
func (m MultiCallLogger) LogCall(ctx context.Context, call *entity.ExtractionCall) error {
	var errs []error
	for _, l := range m {
		if err := l.LogCall(ctx, call); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RepositoryCallLogger stores calls through a CallLogRepository
type RepositoryCallLogger struct {
	repo port.CallLogRepository
}

// NewRepositoryCallLogger creates a call logger backed by the database
func NewRepositoryCallLogger(repo port.CallLogRepository) *RepositoryCallLogger {
	return &RepositoryCallLogger{repo: repo}
}

// LogCall implements CallLogger
func (r *RepositoryCallLogger) LogCall(ctx context.Context, call *entity.ExtractionCall) error {
	return r.repo.Create(ctx, call)
}

// FileCallLogger writes one YAML file per attempt into a directory
type FileCallLogger struct {
	dir string
}

// NewFileCallLogger creates the log directory if needed
func NewFileCallLogger(dir string) (*FileCallLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create call log directory: %w", err)
	}
	return &FileCallLogger{dir: dir}, nil
}

// LogCall implements CallLogger
func (f *FileCallLogger) LogCall(ctx context.Context, call *entity.ExtractionCall) error {
	data, err := yaml.Marshal(call)
	if err != nil {
		return fmt.Errorf("failed to encode call log: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(call.AssetPath), filepath.Ext(call.AssetPath))
	name := fmt.Sprintf("%s_%s_attempt%d.yaml",
		call.StartedAt.Format("20060102T150405"),
		utils.SanitizeFileName(stem, 60),
		call.Attempt)

	if err := os.WriteFile(filepath.Join(f.dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write call log: %w", err)
	}
	return nil
}

// Dir returns the directory the logger writes to
func (f *FileCallLogger) Dir() string {
	return f.dir
}
