package models

import "time"

// CrashReport is one submitted occurrence of an application failure.
// IDs are server-assigned and monotonic. GroupID 0 means the report has
// not been assigned to a group yet; ingestion always starts at 0.
type CrashReport struct {
	ID               int64     `db:"id"                json:"id"`
	BundleIdentifier string    `db:"bundle_identifier" json:"bundle_identifier"`
	Version          string    `db:"version"           json:"version"`
	ApplicationName  string    `db:"application_name"  json:"application_name"`
	Timestamp        time.Time `db:"timestamp"         json:"timestamp"`
	SystemVersion    string    `db:"system_version"    json:"system_version"`
	Platform         string    `db:"platform"          json:"platform"`
	Jailbreak        bool      `db:"jailbreak"         json:"jailbreak"`
	UserID           string    `db:"user_id"           json:"user_id"`
	Username         string    `db:"username"          json:"username"`
	Contact          string    `db:"contact"           json:"contact"`
	Description      string    `db:"description"       json:"description"`
	Log              string    `db:"log"               json:"log,omitempty"`
	GroupID          int64     `db:"group_id"          json:"group_id"`

	// SymbolicationState is populated by listings only; the detail
	// endpoint reports state through the ledger instead.
	SymbolicationState SymbolicationState `db:"symbolication_state" json:"symbolication_state,omitempty"`
	CreatedAt        time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"        json:"updated_at"`
}
