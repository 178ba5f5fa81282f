// Package storage keeps students, groups, memberships and chat history in a
// single SQLite file. It is the membership authority and the message store
// of the hub.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

type DB struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (or creates) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: writes are serialized and ":memory:" stays a single
	// database.
	db.SetMaxOpenConns(1)

	if path == ":memory:" {
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Str("module", "storage").Str("path", path).Msg("database ready")
	return &DB{db: db, path: path, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	tables := []struct{ name, ddl string }{
		{"students", `
			CREATE TABLE IF NOT EXISTS students (
				id           TEXT PRIMARY KEY,
				name         TEXT NOT NULL,
				email        TEXT DEFAULT '',
				college_name TEXT DEFAULT ''
			);`},
		{"groups", `
			CREATE TABLE IF NOT EXISTS groups (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				created_by TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);`},
		{"group_members", `
			CREATE TABLE IF NOT EXISTS group_members (
				group_id   TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
				student_id TEXT NOT NULL,
				PRIMARY KEY (group_id, student_id)
			);`},
		{"messages", `
			CREATE TABLE IF NOT EXISTS messages (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				group_id     TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
				sender_id    TEXT NOT NULL,
				message_text TEXT NOT NULL,
				created_at   INTEGER NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_messages_group ON messages(group_id, id);`},
	}
	for _, t := range tables {
		if _, err := db.Exec(t.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", t.name, err)
		}
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Path() string {
	return d.path
}
