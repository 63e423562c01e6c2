// Package api exposes the controller over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/saaga0h/jeeves-climate/internal/coordinator"
	"github.com/saaga0h/jeeves-climate/internal/journal"
)

// Controller is what the API drives
type Controller interface {
	Status(ctx context.Context) coordinator.Status
	CallService(ctx context.Context, name string, req coordinator.ServiceRequest) error
	SetSetpoint(ctx context.Context, kind string, value float64) error
	SetVentilationParam(ctx context.Context, param string, value float64) error
}

// JournalReader lists journal entries
type JournalReader interface {
	Between(ctx context.Context, from, to time.Time, kind journal.Kind) ([]journal.Entry, error)
}

type valueRequest struct {
	Value *float64 `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewRouter registers the control routes. The journal and metrics routes
// are only served when j and metrics are not nil.
func NewRouter(c Controller, j JournalReader, metrics http.Handler, logger *slog.Logger) *httprouter.Router {
	router := httprouter.New()
	router.GET("/status", Status(c, logger))
	router.POST("/services/:service", Service(c, logger))
	router.PUT("/setpoints/:kind", Setpoint(c, logger))
	router.PUT("/ventilation/:param", VentilationParam(c, logger))
	if j != nil {
		router.GET("/journal", Journal(j, time.Local, time.Now, logger))
	}
	if metrics != nil {
		router.Handler(http.MethodGet, "/metrics", metrics)
	}
	return router
}

// Status serves the controller snapshot
func Status(c Controller, logger *slog.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, logger, http.StatusOK, c.Status(r.Context()))
	}
}

// Service runs a named service. The body is optional.
func Service(c Controller, logger *slog.Logger) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req coordinator.ServiceRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
				return
			}
		}

		if err := c.CallService(r.Context(), ps.ByName("service"), req); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, c.Status(r.Context()))
	}
}

// Setpoint changes a setpoint from a {"value": n} body
func Setpoint(c Controller, logger *slog.Logger) httprouter.Handle {
	return valueHandler(logger, func(ctx context.Context, name string, v float64) error {
		return c.SetSetpoint(ctx, name, v)
	}, "kind", c)
}

// VentilationParam changes a ventilation parameter from a {"value": n} body
func VentilationParam(c Controller, logger *slog.Logger) httprouter.Handle {
	return valueHandler(logger, func(ctx context.Context, name string, v float64) error {
		return c.SetVentilationParam(ctx, name, v)
	}, "param", c)
}

func valueHandler(logger *slog.Logger, set func(context.Context, string, float64) error, param string, c Controller) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req valueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
			writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: `body must be {"value": <number>}`})
			return
		}

		if err := set(r.Context(), ps.ByName(param), *req.Value); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, c.Status(r.Context()))
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, coordinator.ErrUnknownService):
		code = http.StatusNotFound
	case errors.Is(err, coordinator.ErrInvalidValue):
		code = http.StatusBadRequest
	}
	writeJSON(w, logger, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
