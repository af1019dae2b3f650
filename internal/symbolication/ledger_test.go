package symbolication

import (
	"context"
	"errors"
	"testing"

	"github.com/stackshot/crashd/internal/store"
	"github.com/stackshot/crashd/pkg/models"
)

// fakeStore is an in-memory symbolication.Store.
type fakeStore struct {
	logs   map[int64]string
	states map[int64]models.SymbolicationState

	applyErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		logs:   make(map[int64]string),
		states: make(map[int64]models.SymbolicationState),
	}
}

func (f *fakeStore) ApplySymbolication(ctx context.Context, crashID int64, log string) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	if _, ok := f.logs[crashID]; !ok {
		return store.ErrNotFound
	}
	// Log overwrite and state advance are one storage transaction.
	f.logs[crashID] = log
	if f.states[crashID] != models.StateFinalized {
		f.states[crashID] = models.StateNeedsReview
	}
	return nil
}

func (f *fakeStore) GetSymbolicationState(ctx context.Context, crashID int64) (models.SymbolicationState, error) {
	if _, ok := f.logs[crashID]; !ok {
		return "", store.ErrNotFound
	}
	if state, ok := f.states[crashID]; ok {
		return state, nil
	}
	return models.StatePending, nil
}

func (f *fakeStore) ListOutstandingCrashIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for id := range f.logs {
		if f.states[id] != models.StateFinalized {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) FinalizeSymbolication(ctx context.Context, crashID int64) error {
	if _, ok := f.logs[crashID]; !ok {
		return store.ErrNotFound
	}
	f.states[crashID] = models.StateFinalized
	return nil
}

// --- MarkSymbolicated tests ---

func TestMarkSymbolicated_AdvancesState(t *testing.T) {
	fs := newFakeStore()
	fs.logs[10] = "BAD LOG"
	l := NewLedger(fs)
	ctx := context.Background()

	if err := l.MarkSymbolicated(ctx, 10, "GOOD LOG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fs.logs[10] != "GOOD LOG" {
		t.Errorf("log not overwritten: %q", fs.logs[10])
	}
	state, err := l.State(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != models.StateNeedsReview {
		t.Errorf("expected needs_review, got %s", state)
	}
}

func TestMarkSymbolicated_UnknownCrash(t *testing.T) {
	l := NewLedger(newFakeStore())

	err := l.MarkSymbolicated(context.Background(), 404, "log")
	if !errors.Is(err, ErrUnknownCrash) {
		t.Errorf("expected ErrUnknownCrash, got: %v", err)
	}
}

func TestMarkSymbolicated_StorageFailureLeavesStateUntouched(t *testing.T) {
	fs := newFakeStore()
	fs.logs[10] = "BAD LOG"
	fs.applyErr = errors.New("disk full")
	l := NewLedger(fs)
	ctx := context.Background()

	err := l.MarkSymbolicated(ctx, 10, "GOOD LOG")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrUnknownCrash) {
		t.Errorf("storage failure must not masquerade as unknown crash: %v", err)
	}

	fs.applyErr = nil
	if fs.logs[10] != "BAD LOG" {
		t.Errorf("failed apply must not change the log: %q", fs.logs[10])
	}
	state, _ := l.State(ctx, 10)
	if state != models.StatePending {
		t.Errorf("failed apply must not advance state, got %s", state)
	}
}

func TestMarkSymbolicated_Idempotent(t *testing.T) {
	fs := newFakeStore()
	fs.logs[10] = "BAD LOG"
	l := NewLedger(fs)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.MarkSymbolicated(ctx, 10, "GOOD LOG"); err != nil {
			t.Fatalf("submission %d failed: %v", i, err)
		}
	}

	if fs.logs[10] != "GOOD LOG" {
		t.Errorf("unexpected log: %q", fs.logs[10])
	}
	state, _ := l.State(ctx, 10)
	if state != models.StateNeedsReview {
		t.Errorf("expected needs_review after repeated submits, got %s", state)
	}
}

func TestMarkSymbolicated_FinalizedStaysFinalized(t *testing.T) {
	fs := newFakeStore()
	fs.logs[10] = "GOOD LOG"
	l := NewLedger(fs)
	ctx := context.Background()

	if err := l.Finalize(ctx, 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.MarkSymbolicated(ctx, 10, "BETTER LOG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fs.logs[10] != "BETTER LOG" {
		t.Errorf("log overwrite is unconditional, got %q", fs.logs[10])
	}
	state, _ := l.State(ctx, 10)
	if state != models.StateFinalized {
		t.Errorf("finalized crash must not reopen, got %s", state)
	}
}

// --- State tests ---

func TestState_AbsentEntryIsPending(t *testing.T) {
	fs := newFakeStore()
	fs.logs[10] = "raw"
	l := NewLedger(fs)

	state, err := l.State(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != models.StatePending {
		t.Errorf("expected pending for untouched crash, got %s", state)
	}
}

func TestState_UnknownCrash(t *testing.T) {
	l := NewLedger(newFakeStore())

	_, err := l.State(context.Background(), 404)
	if !errors.Is(err, ErrUnknownCrash) {
		t.Errorf("expected ErrUnknownCrash, got: %v", err)
	}
}

// --- Pending tests ---

func TestPending_ExcludesFinalized(t *testing.T) {
	fs := newFakeStore()
	fs.logs[1] = "raw"
	fs.logs[2] = "symbolicated"
	fs.logs[3] = "done"
	l := NewLedger(fs)
	ctx := context.Background()

	if err := l.MarkSymbolicated(ctx, 2, "symbolicated"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Finalize(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids, err := l.Pending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := make(map[int64]bool, len(ids))
	for _, id := range ids {
		got[id] = true
	}
	if !got[1] || !got[2] {
		t.Errorf("pending and needs_review crashes must be listed, got %v", ids)
	}
	if got[3] {
		t.Errorf("finalized crash must not be listed, got %v", ids)
	}
}

func TestPending_RecomputedEachCall(t *testing.T) {
	fs := newFakeStore()
	fs.logs[1] = "raw"
	l := NewLedger(fs)
	ctx := context.Background()

	ids, err := l.Pending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(ids))
	}

	if err := l.Finalize(ctx, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids, err = l.Pending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no pending after finalize, got %v", ids)
	}
}

// --- Finalize tests ---

func TestFinalize_UnknownCrash(t *testing.T) {
	l := NewLedger(newFakeStore())

	err := l.Finalize(context.Background(), 404)
	if !errors.Is(err, ErrUnknownCrash) {
		t.Errorf("expected ErrUnknownCrash, got: %v", err)
	}
}
