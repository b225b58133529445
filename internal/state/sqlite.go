package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/winterbear26/kiwiplates-watcher/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS plate_status (
	combination TEXT PRIMARY KEY,
	available   INTEGER,          -- 1/0, NULL = unknown
	reason      TEXT NOT NULL DEFAULT '',
	last_seen   TEXT NOT NULL DEFAULT ''
);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("state.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (map[string]Record, error) {
	snap := map[string]Record{}
	if s.db == nil {
		return snap, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT combination, available, reason, last_seen FROM plate_status`)
	if err != nil {
		// Same self-healing stance as the file driver: no prior knowledge.
		s.log.Warn("state table unreadable, starting from empty", logx.Err(err))
		return snap, nil
	}
	defer rows.Close()

	for rows.Next() {
		var (
			comb     string
			avail    sql.NullBool
			reason   string
			lastSeen string
		)
		if err := rows.Scan(&comb, &avail, &reason, &lastSeen); err != nil {
			s.log.Warn("state row skipped", logx.Err(err))
			continue
		}
		rec := Record{Reason: reason, LastSeen: lastSeen}
		if avail.Valid {
			rec.Available = FromBool(avail.Bool)
		}
		snap[comb] = rec
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("state scan incomplete", logx.Err(err))
	}
	return snap, nil
}

// Save replaces the whole table in one transaction so a concurrent reader
// of the database file never observes a mix of old and new rows.
func (s *sqliteStore) Save(ctx context.Context, snapshot map[string]Record) error {
	if s.db == nil {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM plate_status`); err != nil {
		return err
	}
	for comb, rec := range snapshot {
		var avail any
		switch rec.Available {
		case Available:
			avail = 1
		case Unavailable:
			avail = 0
		default:
			avail = nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plate_status(combination, available, reason, last_seen) VALUES(?,?,?,?)`,
			comb, avail, rec.Reason, rec.LastSeen,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
