package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stackshot/crashd/internal/api/response"
	"github.com/stackshot/crashd/internal/cache"
	"github.com/stackshot/crashd/internal/grouping"
	"github.com/stackshot/crashd/internal/metrics"
)

// Regrouper is the slice of the grouping engine the handler depends on.
type Regrouper interface {
	RegroupBatch(ctx context.Context, bundleIdentifier, version string, groupID *int64) (grouping.RegroupResult, error)
}

// NewRegroupHandler returns the handler for POST /api/v1/admin/regroup.
// It re-runs group assignment for every crash in the requested scope.
func NewRegroupHandler(engine Regrouper, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BundleIdentifier string `json:"bundle_identifier"`
			Version          string `json:"version"`
			GroupID          *int64 `json:"group_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		result, err := engine.RegroupBatch(r.Context(), req.BundleIdentifier, req.Version, req.GroupID)
		if errors.Is(err, grouping.ErrInvalidScope) {
			metrics.ObserveRegroup("invalid_scope", 0)
			response.Error(w, http.StatusBadRequest, "INVALID_SCOPE",
				"bundle_identifier and version are required", nil)
			return
		}
		if err != nil {
			metrics.ObserveRegroup("error", result.Moved)
			slog.Error("regroup failed",
				"bundle_identifier", req.BundleIdentifier, "version", req.Version, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Regrouping failed", nil)
			return
		}

		metrics.ObserveRegroup("success", result.Moved)

		// Group listings for this scope are stale now.
		if err := c.Delete(r.Context(), cache.GroupListKey(req.BundleIdentifier, req.Version)); err != nil {
			slog.Warn("group list cache invalidation failed", "error", err)
		}

		response.JSON(w, result)
	}
}
