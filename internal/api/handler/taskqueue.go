// Package handler contains the HTTP handlers for the admin API and the
// worker-facing task queue surface.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stackshot/crashd/internal/metrics"
	"github.com/stackshot/crashd/internal/store"
	"github.com/stackshot/crashd/internal/symbolication"
)

// LedgerService is the slice of the symbolication ledger the task queue
// needs.
type LedgerService interface {
	MarkSymbolicated(ctx context.Context, crashID int64, newLog string) error
	Pending(ctx context.Context) ([]int64, error)
}

// CrashLogReader fetches the currently persisted log text for a crash.
type CrashLogReader interface {
	GetCrashLog(ctx context.Context, id int64) (string, error)
}

// The task queue endpoints speak plain text, not JSON: the download
// endpoints return raw bytes, and the update endpoint signals success
// with a body whose trailing token is the literal "success". Workers
// match on that token, so the shape here is load-bearing.

// NewTodoHandler serves GET /symbolicate/todo: a comma-separated list of
// every crash id in pending or needs_review state. An empty body means
// nothing to do. The list is a snapshot with no lease or reservation;
// overlapping lists across concurrent workers are expected.
func NewTodoHandler(ledger LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := ledger.Pending(r.Context())
		if err != nil {
			slog.Error("todo list failed", "error", err)
			http.Error(w, "error", http.StatusInternalServerError)
			return
		}
		metrics.SetTodoSize(len(ids))

		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatInt(id, 10)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(strings.Join(parts, ",")))
	}
}

// NewCrashDataHandler serves GET /symbolicate/crash/{id}: the crash's
// currently persisted log bytes, raw or previously symbolicated.
func NewCrashDataHandler(logs CrashLogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "error", http.StatusBadRequest)
			return
		}

		log, err := logs.GetCrashLog(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "error", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("crash data fetch failed", "crash_id", id, "error", err)
			http.Error(w, "error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(log))
	}
}

// NewUpdateHandler serves POST /symbolicate/update with form fields `id`
// and `log`; every other posted field is ignored. Empty id or log is
// rejected before any state is touched. The submit is an unconditional
// overwrite, so retried or duplicate submissions converge on the same
// stored state.
func NewUpdateHandler(ledger LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeUpdateResult(w, http.StatusBadRequest, "rejected")
			return
		}

		rawID := r.PostFormValue("id")
		newLog := r.PostFormValue("log")
		if rawID == "" || newLog == "" {
			writeUpdateResult(w, http.StatusBadRequest, "rejected")
			return
		}

		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			writeUpdateResult(w, http.StatusBadRequest, "rejected")
			return
		}

		err = ledger.MarkSymbolicated(r.Context(), id, newLog)
		if errors.Is(err, symbolication.ErrUnknownCrash) {
			writeUpdateResult(w, http.StatusNotFound, "unknown_crash")
			return
		}
		if err != nil {
			slog.Error("symbolication submit failed", "crash_id", id, "error", err)
			writeUpdateResult(w, http.StatusInternalServerError, "error")
			return
		}

		metrics.ObserveSubmission("success")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("success"))
	}
}

func writeUpdateResult(w http.ResponseWriter, status int, outcome string) {
	metrics.ObserveSubmission(outcome)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte("error"))
}
