package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/stackshot/crashd/internal/api/response"
	"github.com/stackshot/crashd/internal/store"
	"github.com/stackshot/crashd/internal/symbolication"
	"github.com/stackshot/crashd/pkg/models"
)

// CrashStore is the slice of the store the crash handlers depend on.
type CrashStore interface {
	GetCrashReport(ctx context.Context, id int64) (*models.CrashReport, error)
	ListCrashReports(ctx context.Context, filter store.CrashFilter) ([]*models.CrashReport, error)
}

// StateService exposes ledger reads and the explicit finalize transition.
type StateService interface {
	State(ctx context.Context, crashID int64) (models.SymbolicationState, error)
	Finalize(ctx context.Context, crashID int64) error
}

// NewListCrashesHandler returns the handler for GET /api/v1/crashes.
// group_id=0 lists reports not yet assigned to any group.
func NewListCrashesHandler(s CrashStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		bundleID := q.Get("bundle_identifier")
		version := q.Get("version")
		if bundleID == "" || version == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_SCOPE",
				"bundle_identifier and version are required", nil)
			return
		}

		filter := store.CrashFilter{BundleIdentifier: bundleID, Version: version}
		if raw := q.Get("group_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid group_id", nil)
				return
			}
			filter.GroupID = &id
		}

		crashes, err := s.ListCrashReports(r.Context(), filter)
		if err != nil {
			slog.Error("crash listing failed",
				"bundle_identifier", bundleID, "version", version, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to list crashes", nil)
			return
		}
		if crashes == nil {
			crashes = []*models.CrashReport{}
		}
		response.JSON(w, crashes)
	}
}

// NewGetCrashHandler returns the handler for GET /api/v1/crashes/{id}:
// the full report including its log and current ledger state.
func NewGetCrashHandler(s CrashStore, states StateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid crash id", nil)
			return
		}

		crash, err := s.GetCrashReport(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Crash not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to load crash", nil)
			return
		}

		state, err := states.State(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to load symbolication state", nil)
			return
		}

		response.JSON(w, map[string]any{
			"crash":               crash,
			"symbolication_state": state,
		})
	}
}

// NewFinalizeCrashHandler returns the handler for
// POST /api/v1/crashes/{id}/finalize. Finalizing removes the crash from
// the worker todo list permanently; the pipeline never does this on its
// own.
func NewFinalizeCrashHandler(states StateService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid crash id", nil)
			return
		}

		err = states.Finalize(r.Context(), id)
		if errors.Is(err, symbolication.ErrUnknownCrash) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Crash not found", nil)
			return
		}
		if err != nil {
			slog.Error("finalize failed", "crash_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to finalize crash", nil)
			return
		}

		response.JSON(w, map[string]any{
			"crash_id":            id,
			"symbolication_state": models.StateFinalized,
		})
	}
}
