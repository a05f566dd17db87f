// Package api serves stored backtest results over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"trendlab/internal/model"
	"trendlab/internal/portfolio"
)

// ResultStore is the read side the API needs.
type ResultStore interface {
	LastRun(ctx context.Context) (string, error)
	Instruments(ctx context.Context) ([]string, error)
	ReadSummary(ctx context.Context, runID, instrument string) (portfolio.Summary, error)
}

// NewRouter sets up the result routes:
//
//	GET /api/v1/health
//	GET /api/v1/instruments
//	GET /api/v1/runs/last
//	GET /api/v1/summary/{instrument}[?run_id=R]   (default: last run)
func NewRouter(store ResultStore) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(logRequests)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/instruments", handleInstruments(store))
		r.Get("/runs/last", handleLastRun(store))
		r.Get("/summary/{instrument}", handleSummary(store))
	})
	return r
}

func handleInstruments(store ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		insts, err := store.Instruments(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if insts == nil {
			insts = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"instruments": insts})
	}
}

func handleLastRun(store ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := store.LastRun(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if id == "" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs yet"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"run_id": id})
	}
}

func handleSummary(store ResultStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inst := chi.URLParam(r, "instrument")
		runID := r.URL.Query().Get("run_id")
		if runID == "" {
			var err error
			if runID, err = store.LastRun(r.Context()); err != nil {
				writeError(w, r, err)
				return
			}
		}
		s, err := store.ReadSummary(r.Context(), runID, inst)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"run_id":     runID,
			"instrument": inst,
			"summary":    s,
		})
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, model.ErrInvalidInput) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	slog.Error("api: store error", "path", r.URL.Path, "error", err,
		"request_id", middleware.GetReqID(r.Context()))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
