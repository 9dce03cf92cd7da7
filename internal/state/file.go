package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"blogger-indexer/internal/scheduler"
)

const (
	historyFile = "history.json"
	quotaFile   = "quota.json"
)

// FileStore persists state as JSON files in a data directory. Writes go
// through a temp file and rename, so readers never observe a partial file.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) LoadHistory(ctx context.Context) (scheduler.History, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, historyFile))
	if errors.Is(err, fs.ErrNotExist) {
		return make(scheduler.History), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var h scheduler.History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	if h == nil {
		h = make(scheduler.History)
	}
	return h, nil
}

func (s *FileStore) SaveHistory(ctx context.Context, h scheduler.History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return s.writeAtomic(historyFile, data)
}

func (s *FileStore) QuotaUsed(ctx context.Context, day string) (int, error) {
	counts, err := s.loadQuota()
	if err != nil {
		return 0, err
	}
	return counts[day], nil
}

func (s *FileStore) AddQuotaUsed(ctx context.Context, day string, n int) error {
	counts, err := s.loadQuota()
	if err != nil {
		return err
	}
	counts[day] += n

	// Old days are dead weight once the date rolls over.
	for d := range counts {
		if d != day {
			delete(counts, d)
		}
	}

	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal quota counts: %w", err)
	}
	return s.writeAtomic(quotaFile, data)
}

func (s *FileStore) loadQuota() (map[string]int, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, quotaFile))
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota counts: %w", err)
	}

	counts := make(map[string]int)
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("failed to parse quota counts: %w", err)
	}
	return counts, nil
}

func (s *FileStore) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
