// Package seen provides the durable, append-only record of dispatched ids.
package seen

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/relay"
)

// FileStore keeps ids in memory and appends each new one to a newline-delimited file.
type FileStore struct {
	mu   sync.Mutex
	path string
	ids  map[string]struct{}
}

var _ relay.SeenStore = (*FileStore)(nil)

// OpenFile loads every id recorded at path. A missing file starts an empty set;
// an unreadable one is logged and also starts empty.
func OpenFile(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("seen path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FileStore{path: path, ids: make(map[string]struct{})}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		s.load(data)
		logger.Info("loaded seen ids", zap.Int("count", len(s.ids)), zap.String("path", path))
	case errors.Is(err, os.ErrNotExist):
	default:
		logger.Warn("failed to read seen ids", zap.String("path", path), zap.Error(err))
	}
	return s, nil
}

func (s *FileStore) load(data []byte) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Has reports whether id was recorded.
func (s *FileStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add records id in memory and appends it to the file. The in-memory record
// is kept even when the append fails.
func (s *FileStore) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return nil
	}
	s.ids[id] = struct{}{}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open seen file: %w", err)
	}
	if _, err := f.WriteString(id + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append seen id: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close seen file: %w", err)
	}
	return nil
}

// Len returns the number of recorded ids.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Close is a no-op; every Add is already durable.
func (s *FileStore) Close() error { return nil }
