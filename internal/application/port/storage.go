package port

import "context"

// FileStorage defines file storage operations rooted at one directory
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Copy(ctx context.Context, srcPath, relativeDest string) (string, error)
	Exists(ctx context.Context, path string) bool
	GetFullPath(relativePath string) string
}

// FolderManager defines folder management operations
type FolderManager interface {
	CreateFolder(ctx context.Context, name string) (string, error)
	GetPath(name string) string
	Exists(name string) bool
	SanitizeName(name string) string
}

// Workspace opens storage rooted at a run's directories
type Workspace interface {
	Files(dir string) FileStorage
	Folders(dir string) FolderManager
}
