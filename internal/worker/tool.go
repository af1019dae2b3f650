package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ErrToolFailed indicates the symbolication tool exited nonzero or
// produced no output.
var ErrToolFailed = errors.New("symbolication tool failed")

// Symbolicator turns a raw crash log into a symbolicated one.
type Symbolicator interface {
	Symbolicate(ctx context.Context, inPath, outPath string) error
}

// ExternalTool runs an external symbolication binary. The tool is
// invoked as: path [extraArgs...] -o <outPath> <inPath>.
type ExternalTool struct {
	path      string
	extraArgs []string
	timeout   time.Duration
}

// NewExternalTool creates a Symbolicator backed by an external binary.
func NewExternalTool(path string, extraArgs []string, timeout time.Duration) *ExternalTool {
	return &ExternalTool{
		path:      path,
		extraArgs: extraArgs,
		timeout:   timeout,
	}
}

func (t *ExternalTool) Symbolicate(ctx context.Context, inPath, outPath string) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	args := make([]string, 0, len(t.extraArgs)+3)
	args = append(args, t.extraArgs...)
	args = append(args, "-o", outPath, inPath)

	cmd := exec.CommandContext(ctx, t.path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrToolFailed, err, output)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("%w: no output file: %v", ErrToolFailed, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty output", ErrToolFailed)
	}
	return nil
}

// Compile-time check that ExternalTool implements Symbolicator.
var _ Symbolicator = (*ExternalTool)(nil)
