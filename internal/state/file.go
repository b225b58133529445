package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// fileStore keeps the snapshot as a single pretty-printed JSON file.
//
// Writes go through a temp file + rename so a reader never sees a half
// written snapshot. encoding/json emits map keys sorted, which keeps the
// file diff-friendly across runs.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("state.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Load(ctx context.Context) (map[string]Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("state snapshot unreadable, starting from empty", logx.String("path", s.path), logx.Err(err))
		}
		return map[string]Record{}, nil
	}

	var snap map[string]Record
	if err := json.Unmarshal(b, &snap); err != nil {
		s.log.Warn("state snapshot corrupt, starting from empty", logx.String("path", s.path), logx.Err(err))
		return map[string]Record{}, nil
	}
	if snap == nil {
		snap = map[string]Record{}
	}
	return snap, nil
}

func (s *fileStore) Save(ctx context.Context, snapshot map[string]Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	b, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
