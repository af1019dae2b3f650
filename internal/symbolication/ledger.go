// Package symbolication tracks per-crash symbolication progress. The
// ledger is sparse: a crash the pipeline has never touched has no entry
// and is reported as pending.
package symbolication

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackshot/crashd/internal/store"
	"github.com/stackshot/crashd/pkg/models"
)

// ErrUnknownCrash is returned when the referenced crash id does not exist.
var ErrUnknownCrash = errors.New("unknown crash id")

// Store is the persistence surface the ledger needs.
type Store interface {
	ApplySymbolication(ctx context.Context, crashID int64, log string) error
	GetSymbolicationState(ctx context.Context, crashID int64) (models.SymbolicationState, error)
	ListOutstandingCrashIDs(ctx context.Context) ([]int64, error)
	FinalizeSymbolication(ctx context.Context, crashID int64) error
}

// Ledger is the single write path for symbolication results.
type Ledger struct {
	store Store
}

func NewLedger(s Store) *Ledger {
	return &Ledger{store: s}
}

// MarkSymbolicated overwrites the crash's log with newLog and advances
// the ledger state to needs_review. Both mutations happen in one storage
// transaction: a failure leaves log and state untouched. Applying the
// same log twice is observably the same as applying it once.
func (l *Ledger) MarkSymbolicated(ctx context.Context, crashID int64, newLog string) error {
	err := l.store.ApplySymbolication(ctx, crashID, newLog)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("crash %d: %w", crashID, ErrUnknownCrash)
	}
	if err != nil {
		return fmt.Errorf("mark crash %d symbolicated: %w", crashID, err)
	}
	return nil
}

// State returns the crash's current ledger state; a crash with no ledger
// entry is pending.
func (l *Ledger) State(ctx context.Context, crashID int64) (models.SymbolicationState, error) {
	state, err := l.store.GetSymbolicationState(ctx, crashID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("crash %d: %w", crashID, ErrUnknownCrash)
	}
	if err != nil {
		return "", fmt.Errorf("query state of crash %d: %w", crashID, err)
	}
	return state, nil
}

// Pending returns the ids of every crash in pending or needs_review
// state, recomputed from current store state on each call. The snapshot
// carries no lease: concurrent callers may receive overlapping lists.
func (l *Ledger) Pending(ctx context.Context) ([]int64, error) {
	ids, err := l.store.ListOutstandingCrashIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending crashes: %w", err)
	}
	return ids, nil
}

// Finalize marks a crash as fully symbolicated so it never reappears on
// the todo list. This is an administrative transition; the pipeline
// itself never finalizes anything.
func (l *Ledger) Finalize(ctx context.Context, crashID int64) error {
	err := l.store.FinalizeSymbolication(ctx, crashID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("crash %d: %w", crashID, ErrUnknownCrash)
	}
	if err != nil {
		return fmt.Errorf("finalize crash %d: %w", crashID, err)
	}
	return nil
}
