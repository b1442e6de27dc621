package sessionstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists session state in a sqlite database so a chat can
// survive a process restart.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteDSNForFile builds the DSN for a database file, enabling WAL and a
// busy timeout.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite session store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite session store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS chat_sessions (
		session_key TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);`)
	return errors.Wrap(err, "sqlite session store: migrate")
}

func (s *SQLiteStore) Save(ctx context.Context, key string, state []byte) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("sqlite session store: empty key")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_sessions (session_key, state_json, updated_at_ms)
		VALUES (?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at_ms = excluded.updated_at_ms
	`, key, string(state), time.Now().UnixMilli())
	return errors.Wrap(err, "sqlite session store: save")
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM chat_sessions WHERE session_key = ?`, key).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite session store: load")
	}
	return []byte(state), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE session_key = ?`, key)
	return errors.Wrap(err, "sqlite session store: delete")
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
