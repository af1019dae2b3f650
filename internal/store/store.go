package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stackshot/crashd/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Crash reports. Ingestion creates reports with GroupID 0 and no
	// symbolication row; listings never include the log body.
	CreateCrashReport(ctx context.Context, report *models.CrashReport) error
	GetCrashReport(ctx context.Context, id int64) (*models.CrashReport, error)
	GetCrashLog(ctx context.Context, id int64) (string, error)
	ListCrashReports(ctx context.Context, filter CrashFilter) ([]*models.CrashReport, error)
	AssignCrashToGroup(ctx context.Context, crashID, groupID int64) error

	// Crash groups. FindOrCreateGroup is race-free per
	// (bundle identifier, version, fingerprint): concurrent callers with an
	// identical new signature resolve to the same row.
	FindOrCreateGroup(ctx context.Context, group *models.CrashGroup) (int64, error)
	GetCrashGroup(ctx context.Context, id int64) (*models.CrashGroup, error)
	ListCrashGroups(ctx context.Context, bundleIdentifier, version string) ([]*models.CrashGroupSummary, error)
	UpdateGroupDescription(ctx context.Context, id int64, description string) error

	// Symbolication ledger. ApplySymbolication overwrites the crash log and
	// advances the ledger row in one transaction; no partial update is
	// observable. A crash without a ledger row is in StatePending.
	ApplySymbolication(ctx context.Context, crashID int64, log string) error
	GetSymbolicationState(ctx context.Context, crashID int64) (models.SymbolicationState, error)
	ListOutstandingCrashIDs(ctx context.Context) ([]int64, error)
	FinalizeSymbolication(ctx context.Context, crashID int64) error

	// API keys for the admin surface.
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// CrashFilter scopes a crash report listing. GroupID nil means any group;
// a non-nil 0 selects ungrouped reports only.
type CrashFilter struct {
	BundleIdentifier string
	Version          string
	GroupID          *int64
}
