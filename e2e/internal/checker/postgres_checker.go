package checker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
	"github.com/saaga0h/jeeves-climate/pkg/postgres"
)

// PostgresChecker runs single-value queries against the journal database
type PostgresChecker struct {
	db     postgres.Client
	logger *slog.Logger
}

// NewPostgresChecker wraps a connected client
func NewPostgresChecker(db postgres.Client, logger *slog.Logger) *PostgresChecker {
	return &PostgresChecker{db: db, logger: logger}
}

// Check runs the query and matches the first column of the first row
func (p *PostgresChecker) Check(ctx context.Context, exp scenario.Expectation) (bool, string, interface{}) {
	p.logger.Debug("Executing query", "query", exp.PostgresQuery)

	rows, err := p.db.Query(ctx, exp.PostgresQuery)
	if err != nil {
		return false, fmt.Sprintf("query failed: %v", err), nil
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, fmt.Sprintf("query failed: %v", err), nil
		}
		return false, "query returned no rows", nil
	}

	var result interface{}
	if err := rows.Scan(&result); err != nil {
		return false, fmt.Sprintf("scan failed: %v", err), nil
	}
	if b, ok := result.([]byte); ok {
		result = string(b)
	}

	p.logger.Debug("Query result", "result", result, "expected", exp.PostgresExpected)

	if reason := Match(result, exp.PostgresExpected); reason != "" {
		return false, reason, result
	}
	return true, "", result
}
