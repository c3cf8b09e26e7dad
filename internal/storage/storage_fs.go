package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type FSStorage struct {
	Root string
}

func NewFSStorage(root string) *FSStorage {
	return &FSStorage{Root: root}
}

// ReadFile reads a slash-separated path relative to Root.
func (s *FSStorage) ReadFile(ctx context.Context, relPath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.resolve(relPath))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (s *FSStorage) WriteHTML(ctx context.Context, destPath string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.writeFileAbsolute(s.resolve(destPath), content)
}

// resolve maps a slash-separated path under Root. Leading ".." segments
// are clamped to Root.
func (s *FSStorage) resolve(relPath string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(relPath))
	return filepath.Join(s.Root, clean)
}

func (s *FSStorage) writeFileAbsolute(fullPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// Remove any existing file or symlink so os.WriteFile does not
	// follow a stale symlink left by a previous publish.
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
