// Package history persists run results.
package history

import (
	"errors"
	"time"

	"github.com/psantana5/covrun/internal/report"
)

// Store defines the interface for run history persistence.
// Memory, SQLite and PostgreSQL implement it.
type Store interface {
	Record(r *report.Result) error
	Get(runID string) (*report.Result, error)
	// List returns the newest results first; limit <= 0 means all.
	List(limit int) ([]*report.Result, error)
	// Prune deletes runs started before cutoff and returns how many.
	Prune(cutoff time.Time) (int, error)
	Close() error
	HealthCheck() error
}

var (
	ErrNotFound            = errors.New("run not found")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

// Config holds database configuration
type Config struct {
	Driver string // "memory", "sqlite3" or "postgres"
	DSN    string

	// PostgreSQL specific
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// NewStore creates a store based on configuration
func NewStore(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite3", "sqlite":
		path := cfg.DSN
		if path == "" {
			path = "covrun.db"
		}
		return NewSQLiteStore(path)
	case "postgres", "postgresql":
		return NewPostgreSQLStore(cfg)
	default:
		return nil, ErrUnsupportedDatabase
	}
}
