package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

// FileStore writes audio clips into a directory on the local filesystem
type FileStore struct {
	dir    string
	logger *zap.Logger
}

var _ repositories.AudioStore = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir, defaulting to "audio"
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if dir == "" {
		dir = "audio"
	}
	return &FileStore{dir: dir, logger: logger}
}

// Dir returns the directory clips are written to
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes data to dir/name. The name must carry its own extension.
func (s *FileStore) Save(data []byte, name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}

	s.logger.Debug("Audio saved", zap.String("path", path), zap.Int("size", len(data)))
	return path, nil
}
