package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AzielCF/az-postsync/domains/schedule"
)

// FileScheduleStore keeps the document as a JSON file. The revision is the
// sha256 of the file content.
type FileScheduleStore struct {
	path string
	mu   sync.Mutex
}

var _ schedule.IScheduleStore = (*FileScheduleStore)(nil)

func NewFileScheduleStore(path string) *FileScheduleStore {
	return &FileScheduleStore{path: path}
}

func (s *FileScheduleStore) Fetch(ctx context.Context) (schedule.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return schedule.Snapshot{}, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return schedule.Snapshot{}, schedule.ErrNotFound
		}
		return schedule.Snapshot{}, fmt.Errorf("read schedule file: %w", err)
	}
	return schedule.Parse(raw, contentRevision(raw))
}

func (s *FileScheduleStore) Write(ctx context.Context, raw []byte, expectedRevision string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := ""
	if existing, err := os.ReadFile(s.path); err == nil {
		current = contentRevision(existing)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read schedule file: %w", err)
	}
	if current != expectedRevision {
		return "", schedule.ErrConflict
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create schedule dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schedule-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return "", fmt.Errorf("replace schedule file: %w", err)
	}
	return contentRevision(raw), nil
}

func contentRevision(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
