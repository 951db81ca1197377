// Package storage provides the SQLite-backed keyed container used by the
// credential vault's file backend. One database file per local user, holding
// only encrypted envelopes; plaintext credentials never touch this package.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB holds dual reader/writer connections with WAL mode enabled. The writer
// is limited to a single connection to avoid "database is locked" errors;
// the reader pool allows a few concurrent readers.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewDB opens (creating if necessary) the credential container at dbPath.
// The parent directory is created 0700 and the database file is forced to
// 0600: the envelopes are encrypted, but the container itself still maps
// source ids to record sizes and timestamps.
func NewDB(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create vault directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	if err := os.Chmod(dbPath, 0o600); err != nil {
		writer.Close()
		return nil, fmt.Errorf("restrict vault file permissions: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		reader.Close()
		writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader, path: dbPath}, nil
}

// Path returns the database file location (for operator messaging).
func (db *DB) Path() string {
	return db.path
}

// Close closes both connections. Returns the first error encountered.
func (db *DB) Close() error {
	var firstErr error
	if err := db.Writer.Close(); err != nil {
		firstErr = err
	}
	if err := db.Reader.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
