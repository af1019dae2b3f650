package grouping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stackshot/crashd/internal/store"
	"github.com/stackshot/crashd/pkg/models"
)

// ErrInvalidScope is returned when a grouping operation is missing its
// required bundle identifier or version.
var ErrInvalidScope = errors.New("bundle identifier and version are required")

// Store is the persistence surface the engine needs.
type Store interface {
	GetCrashLog(ctx context.Context, id int64) (string, error)
	ListCrashReports(ctx context.Context, filter store.CrashFilter) ([]*models.CrashReport, error)
	AssignCrashToGroup(ctx context.Context, crashID, groupID int64) error
	FindOrCreateGroup(ctx context.Context, group *models.CrashGroup) (int64, error)
}

// Engine assigns crash reports to crash groups by signature match. Group
// creation is serialized at the storage layer: the unique fingerprint
// index guarantees two concurrent assignments with an identical new
// signature resolve to a single group.
type Engine struct {
	store     Store
	extractor Extractor
}

// NewEngine creates a grouping engine. A nil extractor selects the
// default header parser.
func NewEngine(s Store, extractor Extractor) *Engine {
	if extractor == nil {
		extractor = NewHeaderExtractor()
	}
	return &Engine{store: s, extractor: extractor}
}

// AssignGroup derives the report's signature from its log, finds or
// creates the matching group within (bundle identifier, version), and
// moves the report into it. Returns the group id.
func (e *Engine) AssignGroup(ctx context.Context, report *models.CrashReport) (int64, error) {
	if report.BundleIdentifier == "" || report.Version == "" {
		return 0, ErrInvalidScope
	}

	sig, err := e.extractor.Extract(report.Log)
	if err != nil {
		return 0, fmt.Errorf("extract signature for crash %d: %w", report.ID, err)
	}

	groupID, err := e.store.FindOrCreateGroup(ctx, &models.CrashGroup{
		BundleIdentifier: report.BundleIdentifier,
		Version:          report.Version,
		Location:         sig.Location,
		Exception:        sig.Exception,
		Reason:           sig.Reason,
		Fingerprint:      sig.Fingerprint(),
	})
	if err != nil {
		return 0, fmt.Errorf("find group for crash %d: %w", report.ID, err)
	}

	if report.GroupID != groupID {
		if err := e.store.AssignCrashToGroup(ctx, report.ID, groupID); err != nil {
			return 0, fmt.Errorf("assign crash %d to group %d: %w", report.ID, groupID, err)
		}
		report.GroupID = groupID
	}
	return groupID, nil
}

// RegroupResult reports what a regroup batch did.
type RegroupResult struct {
	Examined int `json:"examined"`
	Moved    int `json:"moved"`
}

// RegroupBatch re-derives the signature of every crash report in the
// scope from its persisted log and re-runs assignment. groupID narrows
// the batch to members of one existing group; nil regroups the whole
// (bundle identifier, version). Idempotent: a second run with no
// intervening writes moves nothing. An empty match set is a success with
// zero moves.
func (e *Engine) RegroupBatch(ctx context.Context, bundleIdentifier, version string, groupID *int64) (RegroupResult, error) {
	if bundleIdentifier == "" || version == "" {
		return RegroupResult{}, ErrInvalidScope
	}

	reports, err := e.store.ListCrashReports(ctx, store.CrashFilter{
		BundleIdentifier: bundleIdentifier,
		Version:          version,
		GroupID:          groupID,
	})
	if err != nil {
		return RegroupResult{}, fmt.Errorf("list crashes for regroup: %w", err)
	}

	var result RegroupResult
	for _, report := range reports {
		result.Examined++

		// Listings omit log bodies; regroup always works from the
		// persisted log, not whatever the caller had in hand.
		log, err := e.store.GetCrashLog(ctx, report.ID)
		if err != nil {
			return result, fmt.Errorf("load log for crash %d: %w", report.ID, err)
		}
		report.Log = log

		before := report.GroupID
		newGroup, err := e.AssignGroup(ctx, report)
		if err != nil {
			return result, err
		}
		if newGroup != before {
			result.Moved++
			slog.Info("crash regrouped",
				"crash_id", report.ID, "from_group", before, "to_group", newGroup)
		}
	}
	return result, nil
}
