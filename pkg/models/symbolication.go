package models

// SymbolicationState tracks per-crash symbolication progress. The ledger
// table is sparse: a crash with no row is StatePending. The pipeline only
// ever advances a crash to StateNeedsReview; StateFinalized is an explicit
// administrative transition and is never inferred.
type SymbolicationState string

const (
	// StatePending means the crash has never been symbolicated.
	StatePending SymbolicationState = "pending"
	// StateNeedsReview means the crash was symbolicated at least once and
	// may be re-processed by a later worker run.
	StateNeedsReview SymbolicationState = "needs_review"
	// StateFinalized means no further symbolication should happen.
	StateFinalized SymbolicationState = "finalized"
)

// Outstanding reports whether a crash in this state belongs on the
// worker todo list.
func (s SymbolicationState) Outstanding() bool {
	return s == StatePending || s == StateNeedsReview
}
