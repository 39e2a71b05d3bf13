package transitdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"busview.transitireland.org/internal/appconf"
)

var (
	// ErrRouteNotFound is returned by lookups for a route absent from the
	// committed reference set.
	ErrRouteNotFound = errors.New("route not found")
)

// Client owns the SQLite store holding both the static reference tables and
// the live vehicle tables.
type Client struct {
	config Config
	DB     *sql.DB
	logger *slog.Logger
}

// NewClient opens (or creates) the database and ensures the schema exists.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		return nil, fmt.Errorf("test database must use in-memory storage, got %q", config.DBPath)
	}

	db, err := sql.Open("sqlite", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// A single connection keeps every reader and writer on one SQLite
	// handle, so a reader can never land on a connection that misses the
	// in-memory database or observes a half-written transaction.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Client{
		config: config,
		DB:     db,
		logger: logger,
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func createSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}

	if err := createTables(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

// TableCount reports the number of rows currently committed in a table.
func (c *Client) TableCount(ctx context.Context, tableName string) (int, error) {
	if _, ok := tableByName(tableName); !ok {
		return 0, fmt.Errorf("unknown table %q", tableName)
	}

	var count int
	err := c.DB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting rows in %s: %w", tableName, err)
	}
	return count, nil
}
