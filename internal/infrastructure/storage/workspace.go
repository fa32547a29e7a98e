package storage

import (
	"github.com/garyjia/receipt-pipeline/internal/application/port"
	"go.uber.org/zap"
)

// LocalWorkspace hands out local storage for any directory
type LocalWorkspace struct {
	logger *zap.Logger
}

// NewLocalWorkspace creates a new LocalWorkspace
func NewLocalWorkspace(logger *zap.Logger) port.Workspace {
	return &LocalWorkspace{logger: logger}
}

// Files returns file storage rooted at dir
func (w *LocalWorkspace) Files(dir string) port.FileStorage {
	return NewLocalFileStorage(dir, w.logger)
}

// Folders returns a folder manager rooted at dir
func (w *LocalWorkspace) Folders(dir string) port.FolderManager {
	return NewLocalFolderManager(dir, w.logger)
}
