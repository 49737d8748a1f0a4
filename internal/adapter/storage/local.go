package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const ProviderLocal = "local"

// LocalStorage mirrors archives into a second directory, typically a
// mounted network share.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Upload copies the archive and returns its file name as the object id.
func (l *LocalStorage) Upload(ctx context.Context, archivePath string, name string) (string, error) {
	objectID := filepath.Base(name)
	destPath := filepath.Join(l.basePath, objectID)

	source, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	tmpPath := destPath + ".part"
	dest, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create dest: %w", err)
	}

	if _, err := io.Copy(dest, &ctxReader{ctx: ctx, r: source}); err != nil {
		dest.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to copy: %w", err)
	}
	if err := dest.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close dest: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move dest into place: %w", err)
	}

	return objectID, nil
}

func (l *LocalStorage) Delete(ctx context.Context, objectID string) error {
	filePath := filepath.Join(l.basePath, filepath.Base(objectID))
	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) GetPath(objectID string) string {
	return filepath.Join(l.basePath, filepath.Base(objectID))
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
