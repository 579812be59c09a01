package watermark

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps seen Message-IDs as a newline-delimited file, newest last.
// Each Record appends and fsyncs before returning. When the list exceeds
// the retention cap the file is rewritten with only the newest entries,
// via a temp file and atomic rename.
type FileStore struct {
	mu        sync.Mutex
	path      string
	retention int
	file      *os.File
	order     []string
	seen      map[string]bool
}

// NewFileStore opens (or creates) the state file at path and loads all
// recorded Message-IDs. retention caps how many IDs are kept.
func NewFileStore(path string, retention int) (*FileStore, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("watermark retention must be positive, got %d", retention)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s := &FileStore{
		path:      path,
		retention: retention,
		seen:      make(map[string]bool),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open watermark file: %w", err)
	}
	s.file = f

	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read watermark file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" || s.seen[id] {
			continue
		}
		s.order = append(s.order, id)
		s.seen[id] = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan watermark file: %w", err)
	}
	return nil
}

// Seen reports whether the Message-ID has been recorded
func (s *FileStore) Seen(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[messageID], nil
}

// Record appends the Message-ID and fsyncs before returning, so the entry
// survives a crash immediately after hand-off.
func (s *FileStore) Record(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[messageID] {
		return nil
	}

	if _, err := s.file.WriteString(messageID + "\n"); err != nil {
		return fmt.Errorf("append watermark entry: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync watermark file: %w", err)
	}

	s.order = append(s.order, messageID)
	s.seen[messageID] = true

	if len(s.order) > s.retention {
		return s.prune()
	}
	return nil
}

// prune rewrites the file keeping only the newest retention entries.
// Caller holds the lock.
func (s *FileStore) prune() error {
	keep := s.order[len(s.order)-s.retention:]

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create pruned watermark file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, id := range keep {
		if _, err := w.WriteString(id + "\n"); err != nil {
			_ = f.Close()
			return fmt.Errorf("write pruned watermark file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush pruned watermark file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync pruned watermark file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close pruned watermark file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("swap watermark file: %w", err)
	}

	_ = s.file.Close()
	appendFile, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopen watermark file: %w", err)
	}
	s.file = appendFile

	s.order = append([]string(nil), keep...)
	s.seen = make(map[string]bool, len(keep))
	for _, id := range keep {
		s.seen[id] = true
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

var _ Store = (*FileStore)(nil)
