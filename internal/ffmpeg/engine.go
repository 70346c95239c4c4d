package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/mediacompose/internal/mediaerr"
)

// LevelTrace is the slog level used for raw engine output, one record per line.
const LevelTrace = slog.Level(-8)

// tailSize is the number of trailing output lines kept for error reports.
const tailSize = 20

// Error reports a failed engine run. It matches mediaerr.ErrEncodeFailure.
type Error struct {
	Args     []string
	ExitCode int
	// Output holds the last lines the engine printed before exiting.
	Output string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ffmpeg error: exit code %d: %v\nargs: %v\noutput: %s", e.ExitCode, e.Err, e.Args, e.Output)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every engine failure an encode failure.
func (e *Error) Is(target error) bool {
	return target == mediaerr.ErrEncodeFailure
}

// Executor runs a complete ffmpeg invocation.
type Executor interface {
	Run(ctx context.Context, inv Invocation) error
}

// Compile-time check that Engine implements Executor.
var _ Executor = (*Engine)(nil)

// Engine executes invocations against the ffmpeg binary.
type Engine struct {
	binary string
	runner CommandRunner
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner replaces the process runner.
func WithRunner(r CommandRunner) Option {
	return func(e *Engine) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithLogger sets the logger receiving command lines and engine output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine. If binary is empty, it defaults to "ffmpeg"
// (found via PATH).
func NewEngine(binary string, opts ...Option) *Engine {
	if binary == "" {
		binary = "ffmpeg"
	}
	e := &Engine{
		binary: binary,
		runner: ExecRunner{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Binary returns the ffmpeg binary path.
func (e *Engine) Binary() string {
	return e.binary
}

// Runner returns the process runner, shared with probes and diagnostics.
func (e *Engine) Runner() CommandRunner {
	return e.runner
}

// Run executes inv. The exit status is the only success signal; on failure
// the partially written output file is removed before the error is returned.
func (e *Engine) Run(ctx context.Context, inv Invocation) error {
	args, err := inv.Args()
	if err != nil {
		return fmt.Errorf("build invocation: %w", err)
	}
	for _, in := range inv.Inputs {
		if err := CheckOutput(inv.Output, in.Path); err != nil {
			return err
		}
	}

	if dir := filepath.Dir(inv.Output); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	e.logger.Debug("running ffmpeg",
		slog.String("output", inv.Output),
		slog.String("command", e.binary+" "+strings.Join(args, " ")),
	)

	tail := make([]string, 0, tailSize)
	start := time.Now()
	err = e.runner.Stream(ctx, e.binary, args, func(line string) {
		if len(tail) == tailSize {
			tail = tail[1:]
		}
		tail = append(tail, line)
		e.logger.Log(ctx, LevelTrace, line)
	})
	if err != nil {
		e.removePartial(inv.Output)
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &Error{
			Args:     args,
			ExitCode: exitCode(err),
			Output:   strings.Join(tail, "\n"),
			Err:      err,
		}
	}

	e.logger.Debug("ffmpeg finished",
		slog.String("output", inv.Output),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func (e *Engine) removePartial(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("failed to remove partial output", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// CheckOutput returns mediaerr.ErrSameInputOutput when output resolves to the
// same file as any of inputs. Paths are compared after filepath.Abs.
func CheckOutput(output string, inputs ...string) error {
	out, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("resolve output %s: %w", output, err)
	}
	for _, in := range inputs {
		if abs, err := filepath.Abs(in); err == nil && abs == out {
			return fmt.Errorf("%w: %s", mediaerr.ErrSameInputOutput, output)
		}
	}
	return nil
}

// ValidateOutput checks that path exists with at least minBytes. An undersized
// file is deleted so a failed run never leaves a result behind.
func ValidateOutput(path string, minBytes int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s was not created", mediaerr.ErrOutputValidation, path)
	}
	if info.Size() < minBytes {
		_ = os.Remove(path)
		return fmt.Errorf("%w: %s is %d bytes, want at least %d", mediaerr.ErrOutputValidation, path, info.Size(), minBytes)
	}
	return nil
}
