package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stackshot/crashd/internal/api/response"
	"github.com/stackshot/crashd/internal/cache"
	"github.com/stackshot/crashd/internal/store"
	"github.com/stackshot/crashd/pkg/models"
)

const groupListTTL = 30 * time.Second

// GroupStore is the slice of the store the group handlers depend on.
type GroupStore interface {
	ListCrashGroups(ctx context.Context, bundleIdentifier, version string) ([]*models.CrashGroupSummary, error)
	GetCrashGroup(ctx context.Context, id int64) (*models.CrashGroup, error)
	UpdateGroupDescription(ctx context.Context, id int64, description string) error
}

// NewListGroupsHandler returns the handler for GET /api/v1/groups.
// Listings are cached briefly; regrouping and description edits
// invalidate the scope's entry.
func NewListGroupsHandler(s GroupStore, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bundleID := r.URL.Query().Get("bundle_identifier")
		version := r.URL.Query().Get("version")
		if bundleID == "" || version == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_SCOPE",
				"bundle_identifier and version are required", nil)
			return
		}

		key := cache.GroupListKey(bundleID, version)
		if cached, ok, err := c.Get(r.Context(), key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write(cached)
			return
		}

		groups, err := s.ListCrashGroups(r.Context(), bundleID, version)
		if err != nil {
			slog.Error("group listing failed",
				"bundle_identifier", bundleID, "version", version, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to list groups", nil)
			return
		}
		if groups == nil {
			groups = []*models.CrashGroupSummary{}
		}

		body, err := json.Marshal(map[string]any{"data": groups})
		if err == nil {
			if err := c.Set(r.Context(), key, body, groupListTTL); err != nil {
				slog.Warn("group list cache store failed", "error", err)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
			return
		}
		response.JSON(w, groups)
	}
}

// NewUpdateGroupHandler returns the handler for PATCH /api/v1/groups/{groupID}.
// The description is the only administrator-editable group field; the
// signature fields are fixed at group creation.
func NewUpdateGroupHandler(s GroupStore, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid group id", nil)
			return
		}

		var req struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		group, err := s.GetCrashGroup(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Group not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to load group", nil)
			return
		}

		if err := s.UpdateGroupDescription(r.Context(), id, req.Description); err != nil {
			slog.Error("group description update failed", "group_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR",
				"Failed to update group", nil)
			return
		}

		key := cache.GroupListKey(group.BundleIdentifier, group.Version)
		if err := c.Delete(r.Context(), key); err != nil {
			slog.Warn("group list cache invalidation failed", "error", err)
		}

		group.Description = req.Description
		response.JSON(w, group)
	}
}
