package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/saaga0h/jeeves-climate/pkg/config"
)

var errNotConnected = errors.New("postgres client not connected")

// pgClient wraps a lib/pq connection pool
type pgClient struct {
	db     *sql.DB
	config *config.Config
	logger *slog.Logger
}

// NewClient creates a Postgres client for the journal database in cfg
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	return &pgClient{
		config: cfg,
		logger: logger,
	}
}

// Connect establishes connection to the database
func (c *pgClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to journal database",
		"host", c.config.PostgresHost,
		"port", c.config.PostgresPort,
		"database", c.config.PostgresDB)

	db, err := sql.Open("postgres", c.config.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(c.config.PostgresMaxConnections)
	db.SetMaxIdleConns(c.config.PostgresMaxIdleConnections)
	db.SetConnMaxLifetime(c.config.PostgresConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	c.db = db
	c.logger.Info("Connected to journal database")
	return nil
}

// Disconnect closes the Postgres connection
func (c *pgClient) Disconnect() error {
	if c.db == nil {
		return nil
	}

	err := c.db.Close()
	c.db = nil
	if err != nil {
		return fmt.Errorf("failed to close postgres connection: %w", err)
	}
	c.logger.Info("Disconnected from journal database")
	return nil
}

// Exec executes a statement without returning rows
func (c *pgClient) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if c.db == nil {
		return nil, errNotConnected
	}
	return c.db.ExecContext(ctx, query, args...)
}

// Query executes a query that returns rows
func (c *pgClient) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if c.db == nil {
		return nil, errNotConnected
	}
	return c.db.QueryContext(ctx, query, args...)
}
