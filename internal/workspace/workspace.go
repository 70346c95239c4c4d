// Package workspace manages the scratch directory a pipeline run writes its
// intermediate files into.
//
// A workspace lives next to the output file, is named after it plus a random
// suffix, and holds an advisory lock on "<output>.lock" for its lifetime so two
// runs never write the same output concurrently.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ManifestName is the file name of the concat demuxer list.
const ManifestName = "concat_list.txt"

// Static errors for workspace handling.
var (
	// ErrBusy is returned when another run holds the lock for the same output.
	ErrBusy = errors.New("workspace: output is locked by another run")
	// ErrClosed is returned when a closed workspace is used.
	ErrClosed = errors.New("workspace: closed")
)

// Workspace is a run-scoped temporary directory.
type Workspace struct {
	dir      string
	lockPath string
	lock     *flock.Flock
	logger   *slog.Logger
	closed   bool
}

// Open creates the workspace for output and takes its lock.
func Open(output string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(output)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}
	parent := filepath.Dir(abs)
	if err := os.MkdirAll(parent, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	lockPath := abs + ".lock"
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, abs)
	}

	stem := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	dir := filepath.Join(parent, fmt.Sprintf(".%s.work-%s", stem, uuid.NewString()[:8]))
	if err := os.MkdirAll(dir, 0750); err != nil {
		_ = lock.Unlock()
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	logger.Debug("workspace opened", slog.String("dir", dir))
	return &Workspace{dir: dir, lockPath: lockPath, lock: lock, logger: logger}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// SegmentPath returns the path of the i-th processed segment.
func (w *Workspace) SegmentPath(i int) string {
	return w.Path(fmt.Sprintf("seg_%03d.mp4", i))
}

// WriteManifest writes a concat demuxer list of the given files, in order, and
// returns its path. Paths are made absolute and single quotes escaped.
func (w *Workspace) WriteManifest(paths []string) (string, error) {
	if w.closed {
		return "", ErrClosed
	}

	var b strings.Builder
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("get absolute path for %s: %w", p, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", EscapeManifestPath(abs))
	}

	listPath := w.Path(ManifestName)
	if err := os.WriteFile(listPath, []byte(b.String()), 0600); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return listPath, nil
}

// EscapeManifestPath escapes single quotes for a quoted concat list entry.
func EscapeManifestPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

// Reset removes every file in the workspace, leaving an empty directory.
func (w *Workspace) Reset() error {
	if w.closed {
		return ErrClosed
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("reset workspace: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0750); err != nil {
		return fmt.Errorf("reset workspace: %w", err)
	}
	w.logger.Debug("workspace reset", slog.String("dir", w.dir))
	return nil
}

// Close deletes the workspace and releases the output lock. It is safe to
// call more than once.
func (w *Workspace) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, fmt.Errorf("remove workspace: %w", err))
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release workspace lock: %w", err))
	}
	if err := os.Remove(w.lockPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove lock file: %w", err))
	}
	w.logger.Debug("workspace closed", slog.String("dir", w.dir))
	return errors.Join(errs...)
}
