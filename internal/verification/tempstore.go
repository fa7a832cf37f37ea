package verification

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TempStore holds uploads for the lifetime of one verification request.
// Files are uniquely named and owned by the request that wrote them; the
// handler deletes them on every exit path, and Sweep cleans up anything a
// crashed request left behind.
type TempStore struct {
	dir    string
	logger *zap.Logger
}

// NewTempStore creates the upload directory if it does not exist
func NewTempStore(dir string, logger *zap.Logger) (*TempStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &TempStore{dir: dir, logger: logger}, nil
}

// Save writes an uploaded file to a uniquely named path and returns it
func (s *TempStore) Save(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("%s-%s%s", uuid.New().String(), time.Now().UTC().Format("20060102T150405"), filepath.Ext(file.Filename))
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, nil
}

// Remove deletes a temp file; a file that is already gone is not an error
func (s *TempStore) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Error("failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}

// Sweep deletes files older than ttl. Run periodically; the per-request
// deferred removes are the primary cleanup, this is the backstop.
func (s *TempStore) Sweep(ttl time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("failed to read upload dir", zap.String("dir", s.dir), zap.Error(err))
		return 0
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		s.logger.Info("swept stale uploads", zap.Int("removed", removed))
	}
	return removed
}
