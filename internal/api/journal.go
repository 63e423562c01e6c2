package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/saaga0h/jeeves-climate/internal/journal"
)

// Journal lists journal entries of whole days. from and to are ddmmyyyy in
// tz and both default to today; kind narrows to climate or ventilation.
func Journal(j JournalReader, tz *time.Location, now func() time.Time, logger *slog.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		q := r.URL.Query()

		today := now().In(tz)
		from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, tz)
		if v := q.Get("from"); v != "" {
			t, err := parseDateToMidnight(v, tz)
			if err != nil {
				writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid from date: %v", err)})
				return
			}
			from = t
		}

		to := from
		if v := q.Get("to"); v != "" {
			t, err := parseDateToMidnight(v, tz)
			if err != nil {
				writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid to date: %v", err)})
				return
			}
			to = t
		}
		if to.Before(from) {
			writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "to is before from"})
			return
		}

		kind := journal.Kind(q.Get("kind"))
		switch kind {
		case "", journal.KindClimate, journal.KindVentilation:
		default:
			writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown kind %q", kind)})
			return
		}

		// to is inclusive: add a day to cover it entirely
		entries, err := j.Between(r.Context(), from, to.AddDate(0, 0, 1), kind)
		if err != nil {
			logger.Error("Failed to read journal", "error", err)
			writeJSON(w, logger, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		if entries == nil {
			entries = []journal.Entry{}
		}
		writeJSON(w, logger, http.StatusOK, entries)
	}
}

// parseDateToMidnight parses ddmmyyyy and returns midnight in tz
func parseDateToMidnight(date string, tz *time.Location) (time.Time, error) {
	if len(date) != 8 {
		return time.Time{}, fmt.Errorf("date must be 8 characters (ddmmyyyy), got %d", len(date))
	}
	t, err := time.ParseInLocation("02012006", date, tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %w", err)
	}
	return t, nil
}
