package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"github.com/garyjia/receipt-pipeline/pkg/utils"
	"go.uber.org/zap"
)

// maxFolderName caps sanitized folder names
const maxFolderName = 80

// LocalFolderManager implements port.FolderManager for run output folders
type LocalFolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalFolderManager creates a new LocalFolderManager
func NewLocalFolderManager(baseDir string, logger *zap.Logger) port.FolderManager {
	return &LocalFolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// CreateFolder creates a folder under the base directory and returns its path.
// Creating an existing folder is not an error.
func (m *LocalFolderManager) CreateFolder(ctx context.Context, name string) (string, error) {
	safeName := m.SanitizeName(name)
	if safeName == "" {
		return "", fmt.Errorf("cannot create folder: empty name")
	}

	folderPath := filepath.Join(m.baseDir, safeName)
	if err := os.MkdirAll(folderPath, 0755); err != nil {
		m.logger.Error("Failed to create folder",
			zap.String("name", name),
			zap.String("folder_path", folderPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	m.logger.Debug("Created folder",
		zap.String("name", name),
		zap.String("folder_path", folderPath))

	return folderPath, nil
}

// GetPath returns the path for a folder without creating it
func (m *LocalFolderManager) GetPath(name string) string {
	return filepath.Join(m.baseDir, m.SanitizeName(name))
}

// Exists checks if folder already exists
func (m *LocalFolderManager) Exists(name string) bool {
	info, err := os.Stat(m.GetPath(name))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeName returns a single path component safe for any filesystem
func (m *LocalFolderManager) SanitizeName(name string) string {
	return utils.SanitizeFileName(name, maxFolderName)
}
