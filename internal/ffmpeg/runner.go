// Package ffmpeg runs the external ffmpeg engine: it serializes invocations,
// streams engine output into structured logs and classifies exit status.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// CommandRunner executes external binaries. It is the seam tests use to
// replace ffmpeg, ffprobe and nvidia-smi.
type CommandRunner interface {
	// Output runs a short metadata query and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Stream runs a long command, handing every line of combined stdout and
	// stderr to onLine while the process runs.
	Stream(ctx context.Context, name string, args []string, onLine func(string)) error
}

// Compile-time check that ExecRunner implements CommandRunner.
var _ CommandRunner = ExecRunner{}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

// Output runs name and returns stdout. On failure the returned error carries
// the trimmed stderr.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 - binary paths come from configuration, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Stream runs name with stdout and stderr merged into a single pipe and drains
// it line by line until the process exits.
func (ExecRunner) Stream(ctx context.Context, name string, args []string, onLine func(string)) error {
	// #nosec G204 - binary paths come from configuration, not user input
	cmd := exec.CommandContext(ctx, name, args...)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open output pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && onLine != nil {
			onLine(line)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep the pipe drained so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, pipe)
	}

	if err := cmd.Wait(); err != nil {
		return err
	}
	if scanErr != nil && !errors.Is(scanErr, io.EOF) {
		return fmt.Errorf("read %s output: %w", name, scanErr)
	}
	return nil
}

// scanLines splits on both \n and \r; ffmpeg rewrites its progress line with
// carriage returns.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
