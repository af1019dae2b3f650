package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Report summarizes a single pass over the symbolication queue.
type Report struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
}

// Runner drains the symbolication queue once per Run call. Individual
// crash failures are recorded and skipped; only failure to fetch the
// todo list aborts a pass.
type Runner struct {
	client  Client
	tool    Symbolicator
	workDir string
}

// NewRunner creates a Runner. workDir is where per-crash scratch
// directories are created; empty means the system temp directory.
func NewRunner(client Client, tool Symbolicator, workDir string) *Runner {
	return &Runner{
		client:  client,
		tool:    tool,
		workDir: workDir,
	}
}

// Run performs one full pass: fetch the todo list, then download,
// symbolicate and submit each crash in order.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var report Report

	ids, err := r.client.TodoList(ctx)
	if err != nil {
		return report, fmt.Errorf("fetching todo list: %w", err)
	}

	report.Total = len(ids)
	if len(ids) == 0 {
		slog.Info("symbolication queue empty")
		return report, nil
	}

	slog.Info("starting symbolication pass", "pending", len(ids))

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		switch err := r.processCrash(ctx, id); {
		case err == nil:
			report.Completed++
		case err == errEmptyLog:
			report.Skipped++
			slog.Warn("skipping crash with empty log", "crash_id", id)
		default:
			report.Failed++
			slog.Error("symbolication failed", "crash_id", id, "error", err)
		}
	}

	slog.Info("symbolication pass done",
		"total", report.Total,
		"completed", report.Completed,
		"skipped", report.Skipped,
		"failed", report.Failed)

	return report, nil
}

var errEmptyLog = fmt.Errorf("empty crash log")

func (r *Runner) processCrash(ctx context.Context, id int64) error {
	raw, err := r.client.CrashData(ctx, id)
	if err != nil {
		return fmt.Errorf("downloading crash: %w", err)
	}
	if len(raw) == 0 {
		return errEmptyLog
	}

	dir, err := os.MkdirTemp(r.workDir, fmt.Sprintf("crash-%d-", id))
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "crash.log")
	outPath := filepath.Join(dir, "crash.sym.log")

	if err := os.WriteFile(inPath, raw, 0o600); err != nil {
		return fmt.Errorf("writing crash log: %w", err)
	}

	if err := r.tool.Symbolicate(ctx, inPath, outPath); err != nil {
		return err
	}

	symbolicated, err := os.ReadFile(outPath)
	if err != nil {
		return fmt.Errorf("reading tool output: %w", err)
	}

	if err := r.client.SubmitResult(ctx, id, symbolicated); err != nil {
		return fmt.Errorf("submitting result: %w", err)
	}
	return nil
}
