package models

import "time"

// CrashGroup is a cluster of crash reports sharing a failure signature
// within one (bundle identifier, version). The signature fields and the
// fingerprint are set once when the group is created from its first
// member and never change afterwards; only Description is editable, and
// only through the admin surface.
type CrashGroup struct {
	ID               int64     `db:"id"                json:"id"`
	BundleIdentifier string    `db:"bundle_identifier" json:"bundle_identifier"`
	Version          string    `db:"version"           json:"version"`
	Location         string    `db:"location"          json:"location"`
	Exception        string    `db:"exception"         json:"exception"`
	Reason           string    `db:"reason"            json:"reason"`
	Fingerprint      string    `db:"fingerprint"       json:"fingerprint"`
	Description      string    `db:"description"       json:"description"`
	CreatedAt        time.Time `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"        json:"updated_at"`
}

// CrashGroupSummary is a CrashGroup plus its current member count, as
// returned by group listings.
type CrashGroupSummary struct {
	CrashGroup
	CrashCount int `db:"crash_count" json:"crash_count"`
}
