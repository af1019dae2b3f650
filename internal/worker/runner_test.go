package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeClient is an in-memory task queue.
type fakeClient struct {
	mu        sync.Mutex
	todo      []int64
	todoErr   error
	logs      map[int64][]byte
	dataErr   map[int64]error
	submitted map[int64][]byte
	submitErr map[int64]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		logs:      make(map[int64][]byte),
		dataErr:   make(map[int64]error),
		submitted: make(map[int64][]byte),
		submitErr: make(map[int64]error),
	}
}

func (f *fakeClient) TodoList(ctx context.Context) ([]int64, error) {
	return f.todo, f.todoErr
}

func (f *fakeClient) CrashData(ctx context.Context, crashID int64) ([]byte, error) {
	if err := f.dataErr[crashID]; err != nil {
		return nil, err
	}
	return f.logs[crashID], nil
}

func (f *fakeClient) SubmitResult(ctx context.Context, crashID int64, log []byte) error {
	if err := f.submitErr[crashID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted[crashID] = log
	return nil
}

// upcaseTool rewrites the log in place without a subprocess.
type upcaseTool struct {
	err error
}

func (u *upcaseTool) Symbolicate(ctx context.Context, inPath, outPath string) error {
	if u.err != nil {
		return u.err
	}
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(strings.ReplaceAll(string(data), "BAD", "GOOD")), 0o600)
}

// --- Run tests ---

func TestRun_EmptyTodoIsNothingToDo(t *testing.T) {
	r := NewRunner(newFakeClient(), &upcaseTool{}, t.TempDir())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("empty queue is a successful pass: %v", err)
	}
	if report.Total != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}

func TestRun_TodoFailureIsFatal(t *testing.T) {
	c := newFakeClient()
	c.todoErr = fmt.Errorf("%w: connection refused", ErrServerUnreachable)
	r := NewRunner(c, &upcaseTool{}, t.TempDir())

	_, err := r.Run(context.Background())
	if !errors.Is(err, ErrServerUnreachable) {
		t.Errorf("expected fatal todo failure, got: %v", err)
	}
}

func TestRun_SymbolicatesAndSubmits(t *testing.T) {
	c := newFakeClient()
	c.todo = []int64{1, 2}
	c.logs[1] = []byte("BAD LOG one")
	c.logs[2] = []byte("BAD LOG two")
	r := NewRunner(c, &upcaseTool{}, t.TempDir())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Completed != 2 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
	if string(c.submitted[1]) != "GOOD LOG one" {
		t.Errorf("crash 1 not symbolicated: %q", c.submitted[1])
	}
	if string(c.submitted[2]) != "GOOD LOG two" {
		t.Errorf("crash 2 not symbolicated: %q", c.submitted[2])
	}
}

func TestRun_SkipsEmptyLogs(t *testing.T) {
	c := newFakeClient()
	c.todo = []int64{1, 2}
	c.logs[1] = nil
	c.logs[2] = []byte("BAD LOG")
	r := NewRunner(c, &upcaseTool{}, t.TempDir())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Skipped != 1 || report.Completed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if _, ok := c.submitted[1]; ok {
		t.Error("empty log must not be submitted")
	}
}

func TestRun_PerItemFailureDoesNotAbortBatch(t *testing.T) {
	c := newFakeClient()
	c.todo = []int64{1, 2, 3}
	c.logs[1] = []byte("BAD A")
	c.logs[2] = []byte("BAD B")
	c.logs[3] = []byte("BAD C")
	c.dataErr[2] = fmt.Errorf("%w: status 500", ErrServerError)
	r := NewRunner(c, &upcaseTool{}, t.TempDir())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("per-item failure must not abort the pass: %v", err)
	}

	if report.Completed != 2 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if _, ok := c.submitted[1]; !ok {
		t.Error("crash 1 should have been completed")
	}
	if _, ok := c.submitted[3]; !ok {
		t.Error("crash after the failed one should still be processed")
	}
}

func TestRun_SubmitFailureCounted(t *testing.T) {
	c := newFakeClient()
	c.todo = []int64{1}
	c.logs[1] = []byte("BAD")
	c.submitErr[1] = fmt.Errorf("%w: crash 1 (status 400)", ErrSubmitRejected)
	r := NewRunner(c, &upcaseTool{}, t.TempDir())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Failed != 1 || report.Completed != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestRun_CleansUpScratchDirs(t *testing.T) {
	c := newFakeClient()
	c.todo = []int64{1, 2}
	c.logs[1] = []byte("BAD A")
	c.logs[2] = []byte("BAD B")
	c.submitErr[2] = errors.New("rejected")

	workDir := t.TempDir()
	r := NewRunner(c, &upcaseTool{}, workDir)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dirs left behind on success and failure paths: %v", entries)
	}
}

func TestRun_ContextCancellationStopsPass(t *testing.T) {
	c := newFakeClient()
	c.todo = []int64{1, 2, 3}
	for _, id := range c.todo {
		c.logs[id] = []byte("BAD")
	}
	r := NewRunner(c, &upcaseTool{}, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}

// --- end to end against the wire contract ---

func TestRun_EndToEndOverHTTP(t *testing.T) {
	var mu sync.Mutex
	logs := map[int64]string{
		1: "BAD LOG",
		2: "",
	}
	updated := map[int64]string{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/symbolicate/todo":
			w.Write([]byte("1,2"))
		case strings.HasPrefix(r.URL.Path, "/symbolicate/crash/"):
			id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/symbolicate/crash/"), 10, 64)
			w.Write([]byte(logs[id]))
		case r.URL.Path == "/symbolicate/update":
			r.ParseForm()
			id, _ := strconv.ParseInt(r.PostFormValue("id"), 10, 64)
			mu.Lock()
			updated[id] = r.PostFormValue("log")
			mu.Unlock()
			w.Write([]byte("success"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "", "", 5*time.Second)
	r := NewRunner(client, &upcaseTool{}, t.TempDir())

	report, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Completed != 1 || report.Skipped != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if updated[1] != "GOOD LOG" {
		t.Errorf("expected crash 1 log rewritten to GOOD LOG, got %q", updated[1])
	}
	if _, ok := updated[2]; ok {
		t.Error("empty-log crash must not be submitted")
	}
}
