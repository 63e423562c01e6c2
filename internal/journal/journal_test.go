package journal

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saaga0h/jeeves-climate/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	query string
	args  []interface{}
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) Connect(ctx context.Context) error { return nil }
func (f *fakeDB) Disconnect() error                 { return nil }

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return nil, f.err
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeDB) HealthCheck(ctx context.Context) (*postgres.HealthStatus, error) {
	return &postgres.HealthStatus{Connected: true}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJournal_EnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db, "living_room", testLogger()).EnsureSchema(context.Background()))

	require.Len(t, db.calls, 1)
	assert.Contains(t, db.calls[0].query, "CREATE TABLE IF NOT EXISTS climate_journal")
}

func TestJournal_Record(t *testing.T) {
	db := &fakeDB{}
	j := New(db, "living_room", testLogger())

	temp := 21.0
	at := time.Date(2026, 1, 15, 7, 0, 0, 0, time.FixedZone("EET", 2*3600))
	err := j.Record(context.Background(), Entry{
		Kind:        KindClimate,
		Action:      "on",
		Temperature: &temp,
		Reason:      "Heating needed (19.0°C <= 19.5°C)",
		Debug:       "ON | Comfort temp | 21°C",
		Details:     map[string]interface{}{"comfort_offset_applied": true},
		RecordedAt:  at,
	})
	require.NoError(t, err)

	require.Len(t, db.calls, 1)
	call := db.calls[0]
	assert.True(t, strings.Contains(call.query, "INSERT INTO climate_journal"))
	require.Len(t, call.args, 9)

	_, parseErr := uuid.Parse(call.args[0].(string))
	assert.NoError(t, parseErr, "a fresh id is generated")
	assert.Equal(t, "living_room", call.args[1])
	assert.Equal(t, "climate", call.args[2])
	assert.Equal(t, "on", call.args[3])
	assert.Equal(t, 21.0, call.args[4])
	assert.JSONEq(t, `{"comfort_offset_applied":true}`, call.args[7].(string))
	assert.Equal(t, time.UTC, call.args[8].(time.Time).Location())
}

func TestJournal_RecordWithoutOptionalFields(t *testing.T) {
	db := &fakeDB{}
	j := New(db, "living_room", testLogger())

	id := uuid.New()
	require.NoError(t, j.Record(context.Background(), Entry{
		ID:     id,
		Kind:   KindVentilation,
		Action: "stopped",
		Reason: "Humidity normalized",
	}))

	args := db.calls[0].args
	assert.Equal(t, id.String(), args[0])
	assert.Nil(t, args[4])
	assert.Nil(t, args[7])
	assert.False(t, args[8].(time.Time).IsZero())
}

func TestJournal_RecordError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection reset")}
	err := New(db, "living_room", testLogger()).Record(context.Background(), Entry{Kind: KindClimate})
	assert.ErrorContains(t, err, "connection reset")
}

type fakeRow struct {
	values []interface{}
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *sql.NullFloat64:
			if err := p.Scan(r.values[i]); err != nil {
				return err
			}
		case *sql.NullString:
			if err := p.Scan(r.values[i]); err != nil {
				return err
			}
		default:
			return errors.New("unexpected destination")
		}
	}
	return nil
}

func TestScanEntry(t *testing.T) {
	id := uuid.New()
	at := time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC)

	entry, err := scanEntry(fakeRow{values: []interface{}{
		id.String(), "climate", "on", 21.0, "Heating needed", "ON | Comfort temp", `{"comfort_offset_applied":true}`, at,
	}})
	require.NoError(t, err)

	assert.Equal(t, id, entry.ID)
	assert.Equal(t, KindClimate, entry.Kind)
	assert.Equal(t, "on", entry.Action)
	require.NotNil(t, entry.Temperature)
	assert.Equal(t, 21.0, *entry.Temperature)
	assert.Equal(t, true, entry.Details["comfort_offset_applied"])
	assert.Equal(t, at, entry.RecordedAt)
}

func TestScanEntry_NullColumns(t *testing.T) {
	entry, err := scanEntry(fakeRow{values: []interface{}{
		uuid.New().String(), "ventilation", "started", nil, "Manual Switch", "", nil, time.Now(),
	}})
	require.NoError(t, err)

	assert.Nil(t, entry.Temperature)
	assert.Nil(t, entry.Details)
}

func TestScanEntry_InvalidID(t *testing.T) {
	_, err := scanEntry(fakeRow{values: []interface{}{
		"not-a-uuid", "climate", "off", nil, "", "", nil, time.Now(),
	}})
	assert.ErrorContains(t, err, "invalid id")
}

func TestJournal_BetweenQueryError(t *testing.T) {
	j := New(&fakeDB{}, "living_room", testLogger())
	_, err := j.Between(context.Background(), time.Now().Add(-time.Hour), time.Now(), "")
	assert.ErrorContains(t, err, "failed to query journal")
}
