package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/chainvault/internal/chain"
	"github.com/roach88/chainvault/internal/ir"
	"github.com/roach88/chainvault/internal/seal"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on record_history.block_hash
const currentSchemaVersion = 1

//go:generate mockgen -source store.go -destination ledger_mocks.go -package store

// Ledger is the part of the chain the store depends on: it registers
// writes and reads attestation blocks back for validation.
type Ledger interface {
	AddBlock(ctx context.Context, data ir.BlockData) (chain.Receipt, error)
	ReadBlock(ctx context.Context, hash string) (chain.Block, error)
	VerifyBlock(ctx context.Context, hash string) bool
}

// Store is the keyed record store.
// Uses SQLite with WAL mode; all writes are attested on the ledger.
type Store struct {
	db       *sql.DB
	ledger   Ledger
	keys     *seal.KeyPair
	compress bool
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCompression snappy-compresses encrypted payloads before sealing.
func WithCompression(enabled bool) Option {
	return func(s *Store) {
		s.compress = enabled
	}
}

// WithClock sets the time source for updated_at and written_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// keys may be nil, in which case encrypted writes fail with an
// ENCRYPTION error and encrypted reads with a DECRYPTION error.
//
// This function is idempotent - safe to call multiple times.
func Open(path string, ledger Ledger, keys *seal.KeyPair, opts ...Option) (*Store, error) {
	if ledger == nil {
		return nil, fmt.Errorf("open store: ledger is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A write transaction therefore blocks every other statement until it
	// commits, which keeps the record row and its block in step.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:     db,
		ledger: ledger,
		keys:   keys,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
// The ledger is not closed; it is owned by the caller.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ledger returns the ledger writes are attested on.
func (s *Store) Ledger() Ledger {
	return s.ledger
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 makes every block attest at most one history row.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_record_history_block_unique
		ON record_history(block_hash)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
