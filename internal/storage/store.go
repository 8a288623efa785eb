// Package storage is the encrypted relational store: groups, messages,
// intents, consent, cursors and HMAC keys behind a
// single-writer/multi-reader database/sql handle over SQLite, with the
// on-disk file sealed under a caller-supplied 32-byte key. Grounded in
// internal/storage/message_store.go's method surface (generalized from an
// in-memory map to SQL) and internal/waku/gowaku_enabled.go's choice of
// mattn/go-sqlite3 + migration-driven schema.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xmtp/libxmtp-sub002/internal/logging"
	"github.com/xmtp/libxmtp-sub002/internal/storage/migrations"
)

// Mode selects Persistent (file-backed, encrypted at rest) or Ephemeral
// (in-memory) operation.
type Mode string

const (
	ModePersistent Mode = "persistent"
	ModeEphemeral  Mode = "ephemeral"
)

// Store is the single-writer/multi-reader handle the rest of the system
// shares: the database handle is process-wide with reference-counted
// shared ownership.
type Store struct {
	mu       sync.Mutex // serializes writers; readers use db's own pool
	db       *sql.DB
	mode     Mode
	path     string
	workPath string
	key      []byte
	log      logging.Component
}

// Open opens or creates the store. For ModePersistent, path must be a
// writable file path; if a sealed file already exists there it is
// decrypted into a private temp copy before opening. For ModeEphemeral,
// path and key are ignored beyond key-length validation (still required,
// so a wrong-length key is rejected even when nothing is actually written
// to disk).
func Open(mode Mode, path string, key []byte, log logging.Component) (*Store, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	s := &Store{mode: mode, path: path, key: append([]byte(nil), key...), log: log}

	switch mode {
	case ModeEphemeral:
		db, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1) // one connection, so every query sees this store's private in-memory database
		s.db = db
	case ModePersistent:
		workPath, err := s.stagePlaintextCopy(path)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite3", workPath+"?_journal_mode=WAL&_foreign_keys=on")
		if err != nil {
			return nil, err
		}
		s.db = db
		s.workPath = workPath
	default:
		return nil, fmt.Errorf("storage: unknown mode %q", mode)
	}

	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		s.db.Close()
		return nil, err
	}
	if err := applyMigrations(s.db); err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// workPath is the plaintext temp-file sqlite actually operates on when
// ModePersistent; sealed back to Store.path on Checkpoint/Close.
func (s *Store) stagePlaintextCopy(path string) (string, error) {
	workPath := path + ".work"
	sealed, err := os.ReadFile(path)
	switch {
	case err == nil:
		plaintext, derr := OpenFile(s.key, sealed)
		if derr != nil {
			return "", derr
		}
		if err := os.MkdirAll(filepath.Dir(workPath), 0o700); err != nil {
			return "", err
		}
		if err := os.WriteFile(workPath, plaintext, 0o600); err != nil {
			return "", err
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(workPath), 0o700); err != nil {
			return "", err
		}
	default:
		return "", err
	}
	return workPath, nil
}

// Checkpoint seals the current on-disk state back to Store.path, the
// persistent-mode analog of message_store.go's persistSnapshotLocked.
func (s *Store) Checkpoint() error {
	if s.mode != ModePersistent {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(FULL)"); err != nil {
		return err
	}
	plaintext, err := os.ReadFile(s.workPath)
	if err != nil {
		return err
	}
	sealed, err := SealFile(s.key, plaintext)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, sealed, 0o600)
}

// Close checkpoints (if persistent) and releases the handle.
func (s *Store) Close() error {
	if err := s.Checkpoint(); err != nil {
		return err
	}
	if s.mode == ModePersistent {
		defer os.Remove(s.workPath)
	}
	return s.db.Close()
}

func applyMigrations(db *sql.DB) error {
	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// tx runs fn inside a transaction, guaranteeing commit or rollback on
// every exit path.
func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = txn.Rollback()
			panic(p)
		}
		if err != nil {
			_ = txn.Rollback()
			return
		}
		err = txn.Commit()
	}()
	err = fn(txn)
	return err
}
