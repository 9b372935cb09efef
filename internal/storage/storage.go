// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage persists channel state between invocations of the tool.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "hodlchan.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Channels table: one row per channel this node participates in.
	-- Scripts and transactions are stored hex-encoded.
	CREATE TABLE IF NOT EXISTS channels (
		id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		network TEXT NOT NULL,

		-- Funding output backing the channel
		deposit_txid TEXT NOT NULL,
		deposit_vout INTEGER NOT NULL,
		deposit_value INTEGER NOT NULL,

		-- Script parameters fixed at channel setup
		expiry INTEGER NOT NULL,
		sender_script TEXT NOT NULL,
		receiver_script TEXT NOT NULL,
		receiver_dest_script TEXT NOT NULL,

		-- Latest payment transaction, if any
		last_payment_tx TEXT,

		created_at INTEGER NOT NULL,
		updated_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_channels_deposit ON channels(deposit_txid, deposit_vout);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
