// Package ffmpegtest provides a scripted ffmpeg.CommandRunner for tests that
// exercise pipelines without the real binaries.
package ffmpegtest

import (
	"bytes"
	"context"
	"os"
	"sync"

	"github.com/maauso/mediacompose/internal/ffmpeg"
)

// DefaultOutputSize is the number of bytes a successful fake encode writes.
const DefaultOutputSize = 20000

var _ ffmpeg.CommandRunner = (*Runner)(nil)

// Call records one command the runner received.
type Call struct {
	Name string
	Args []string
}

// Output returns the last argument, the output path of an ffmpeg command.
func (c Call) Output() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}

// Value returns the argument following the first occurrence of flag.
func (c Call) Value(flag string) string {
	return Value(c.Args, flag)
}

// Has reports whether flag appears among the arguments.
func (c Call) Has(flag string) bool {
	for _, a := range c.Args {
		if a == flag {
			return true
		}
	}
	return false
}

// Runner records calls and simulates their effects.
// With no hooks set, Stream writes OutputSize bytes to the output path and
// Output returns an empty result.
type Runner struct {
	mu    sync.Mutex
	calls []Call

	OutputSize int
	OutputFunc func(name string, args []string) ([]byte, error)
	StreamFunc func(call Call, onLine func(string)) error
}

// Output implements ffmpeg.CommandRunner.
func (r *Runner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	r.record(name, args)
	if r.OutputFunc != nil {
		return r.OutputFunc(name, args)
	}
	return nil, nil
}

// Stream implements ffmpeg.CommandRunner.
func (r *Runner) Stream(_ context.Context, name string, args []string, onLine func(string)) error {
	call := r.record(name, args)
	if onLine != nil {
		onLine("frame=    1 fps=0.0 q=0.0 size=       0kB time=00:00:00.00")
	}
	if r.StreamFunc != nil {
		return r.StreamFunc(call, onLine)
	}
	return WriteOutput(call, r.size())
}

// Calls returns every recorded call.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded calls to binary name.
func (r *Runner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func (r *Runner) record(name string, args []string) Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Call{Name: name, Args: append([]string(nil), args...)}
	r.calls = append(r.calls, c)
	return c
}

func (r *Runner) size() int {
	if r.OutputSize > 0 {
		return r.OutputSize
	}
	return DefaultOutputSize
}

// WriteOutput writes size bytes to the output path of call.
func WriteOutput(call Call, size int) error {
	return os.WriteFile(call.Output(), bytes.Repeat([]byte{0x42}, size), 0600)
}

// Value returns the argument following the first occurrence of flag in args.
func Value(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// WriteFile creates a file of size bytes, for inputs that must exist on disk.
func WriteFile(path string, size int) error {
	return os.WriteFile(path, bytes.Repeat([]byte{0x42}, size), 0600)
}
