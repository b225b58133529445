package state

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

// Store persists the combination -> Record snapshot between runs.
//
// Load must tolerate a missing or unreadable snapshot and return an empty
// map: first run and corrupted-state recovery are the same code path.
// Save replaces the whole snapshot; records are never merged field-wise.
type Store interface {
	Load(ctx context.Context) (map[string]Record, error)
	Save(ctx context.Context, snapshot map[string]Record) error
	Close() error
}

// Config configures the snapshot backend.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown state driver: " + cfg.Driver)
	}
}
