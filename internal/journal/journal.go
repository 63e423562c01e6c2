// Package journal records climate decisions and ventilation events in
// Postgres for later inspection.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/saaga0h/jeeves-climate/pkg/postgres"
)

// Kind separates the two subsystems in the journal
type Kind string

const (
	KindClimate     Kind = "climate"
	KindVentilation Kind = "ventilation"
)

const schema = `
CREATE TABLE IF NOT EXISTS climate_journal (
	id          UUID PRIMARY KEY,
	controller  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	action      TEXT NOT NULL,
	temperature DOUBLE PRECISION,
	reason      TEXT NOT NULL,
	debug       TEXT NOT NULL DEFAULT '',
	details     JSONB,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS climate_journal_controller_recorded_at
	ON climate_journal (controller, recorded_at DESC);
`

const insertEntry = `
INSERT INTO climate_journal
	(id, controller, kind, action, temperature, reason, debug, details, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const selectEntries = `
SELECT id::text, kind, action, temperature, reason, debug, details::text, recorded_at
FROM climate_journal
WHERE controller = $1
  AND recorded_at >= $2
  AND recorded_at < $3
  AND ($4 = '' OR kind = $4)
ORDER BY recorded_at`

// Entry is one journal row
type Entry struct {
	ID          uuid.UUID              `json:"id"`
	Kind        Kind                   `json:"kind"`
	Action      string                 `json:"action"`
	Temperature *float64               `json:"temperature,omitempty"`
	Reason      string                 `json:"reason"`
	Debug       string                 `json:"debug,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	RecordedAt  time.Time              `json:"recorded_at"`
}

// Recorder is what the coordinator writes to
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Journal writes entries of one controller to Postgres
type Journal struct {
	db         postgres.Client
	controller string
	logger     *slog.Logger
}

// New creates a journal for the named controller
func New(db postgres.Client, controller string, logger *slog.Logger) *Journal {
	return &Journal{
		db:         db,
		controller: controller,
		logger:     logger,
	}
}

// EnsureSchema creates the journal table when it does not exist
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record inserts one entry. A missing ID or timestamp is filled in.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode journal details: %w", err)
		}
	}

	var temperature interface{}
	if entry.Temperature != nil {
		temperature = *entry.Temperature
	}

	_, err := j.db.Exec(ctx, insertEntry,
		entry.ID.String(),
		j.controller,
		string(entry.Kind),
		entry.Action,
		temperature,
		entry.Reason,
		entry.Debug,
		nullableJSON(details),
		entry.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}

	j.logger.Debug("Journal entry written", "id", entry.ID, "kind", entry.Kind, "action", entry.Action)
	return nil
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

// Between returns the entries recorded in [from, to), oldest first. An
// empty kind returns both subsystems.
func (j *Journal) Between(ctx context.Context, from, to time.Time, kind Kind) ([]Entry, error) {
	rows, err := j.db.Query(ctx, selectEntries, j.controller, from.UTC(), to.UTC(), string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		entry       Entry
		id          string
		kind        string
		temperature sql.NullFloat64
		details     sql.NullString
	)

	if err := row.Scan(&id, &kind, &entry.Action, &temperature, &entry.Reason, &entry.Debug, &details, &entry.RecordedAt); err != nil {
		return Entry{}, fmt.Errorf("failed to scan journal entry: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return Entry{}, fmt.Errorf("journal entry has invalid id %q: %w", id, err)
	}
	entry.ID = parsed
	entry.Kind = Kind(kind)

	if temperature.Valid {
		t := temperature.Float64
		entry.Temperature = &t
	}
	if details.Valid && details.String != "" && details.String != "null" {
		if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
			return Entry{}, fmt.Errorf("journal entry %s has invalid details: %w", id, err)
		}
	}

	return entry, nil
}
