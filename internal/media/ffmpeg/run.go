package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"
)

// maxDiagnostic bounds how much stderr a ToolError keeps.
const maxDiagnostic = 4096

// waitDelay bounds how long Run waits for orphaned pipes after a kill.
const waitDelay = 2 * time.Second

// ToolError describes a failed toolchain invocation.
type ToolError struct {
	Tool     string
	ExitCode int
	Output   string
	TimedOut bool
	Missing  bool
	Err      error
}

func (e *ToolError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("%s: binary not found", e.Tool)
	case e.TimedOut:
		return fmt.Sprintf("%s: timed out", e.Tool)
	case e.Output != "":
		return fmt.Sprintf("%s: exit status %d: %s", e.Tool, e.ExitCode, e.Output)
	default:
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
}

func (e *ToolError) Unwrap() error { return e.Err }

// Exited reports whether the tool ran and returned a non-zero status on its own.
func (e *ToolError) Exited() bool {
	return !e.Missing && !e.TimedOut && e.ExitCode > 0
}

// Run executes binary with args and returns stdout. Failures are reported as
// *ToolError carrying trimmed stderr for diagnostics.
func Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, &ToolError{Tool: "toolchain", Missing: true, Err: exec.ErrNotFound}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	toolErr := &ToolError{
		Tool:   baseName(binary),
		Output: trimDiagnostic(stderr.String()),
		Err:    err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		toolErr.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		toolErr.Err = fmt.Errorf("%w (%v)", ctxErr, err)
		return nil, toolErr
	}
	var exitErr *exec.ExitError
	var lookErr *exec.Error
	switch {
	case errors.As(err, &exitErr):
		toolErr.ExitCode = exitErr.ExitCode()
	case errors.As(err, &lookErr), errors.Is(err, fs.ErrNotExist):
		toolErr.Missing = true
	}
	return nil, toolErr
}

func trimDiagnostic(output string) string {
	output = strings.TrimSpace(output)
	if len(output) <= maxDiagnostic {
		return output
	}
	return "..." + output[len(output)-maxDiagnostic:]
}

func baseName(binary string) string {
	if idx := strings.LastIndexAny(binary, `/\`); idx >= 0 {
		return binary[idx+1:]
	}
	return binary
}
