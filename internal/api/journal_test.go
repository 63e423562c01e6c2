package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/saaga0h/jeeves-climate/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJournal struct {
	from, to time.Time
	kind     journal.Kind
	entries  []journal.Entry
	err      error
}

func (f *fakeJournal) Between(ctx context.Context, from, to time.Time, kind journal.Kind) ([]journal.Entry, error) {
	f.from, f.to, f.kind = from, to, kind
	return f.entries, f.err
}

func journalRouter(j *fakeJournal) *httprouter.Router {
	now := func() time.Time { return time.Date(2026, 1, 15, 7, 30, 0, 0, time.UTC) }
	router := httprouter.New()
	router.GET("/journal", Journal(j, time.UTC, now, testLogger()))
	return router
}

func TestJournal_DefaultsToToday(t *testing.T) {
	j := &fakeJournal{entries: []journal.Entry{{ID: uuid.New(), Kind: journal.KindClimate, Action: "on"}}}

	rec := do(t, journalRouter(j), http.MethodGet, "/journal", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), j.from)
	assert.Equal(t, time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), j.to)
	assert.Equal(t, journal.Kind(""), j.kind)

	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "on", entries[0]["action"])
}

func TestJournal_RangeAndKind(t *testing.T) {
	j := &fakeJournal{}

	rec := do(t, journalRouter(j), http.MethodGet, "/journal?from=10012026&to=12012026&kind=ventilation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), j.from)
	assert.Equal(t, time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC), j.to)
	assert.Equal(t, journal.KindVentilation, j.kind)
}

func TestJournal_BadRequests(t *testing.T) {
	for _, path := range []string{
		"/journal?from=2026-01-10",
		"/journal?from=32012026",
		"/journal?from=12012026&to=10012026",
		"/journal?kind=lights",
	} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, journalRouter(&fakeJournal{}), http.MethodGet, path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestJournal_ReadError(t *testing.T) {
	rec := do(t, journalRouter(&fakeJournal{err: errors.New("connection reset")}), http.MethodGet, "/journal", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewRouter_JournalOnlyWhenConfigured(t *testing.T) {
	rec := do(t, NewRouter(newFakeController(), nil, nil, testLogger()), http.MethodGet, "/journal", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, NewRouter(newFakeController(), &fakeJournal{}, nil, testLogger()), http.MethodGet, "/journal", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
