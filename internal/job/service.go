package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/maauso/mediacompose/internal/mediaerr"
	"github.com/maauso/mediacompose/internal/storage"
)

// DefaultMaxConcurrent is the number of jobs run at once unless configured.
const DefaultMaxConcurrent = 2

// Static errors for job submission.
var (
	// ErrInvalidKind is returned when a spec names an unknown kind.
	ErrInvalidKind = errors.New("invalid job kind")
	// ErrNoTask is returned when a spec has nothing to run.
	ErrNoTask = errors.New("job has no task")
	// ErrShuttingDown is returned when jobs are submitted after Shutdown.
	ErrShuttingDown = errors.New("job service is shutting down")
)

// Task produces the job output at output. It returns the path actually
// written and a pipeline specific result.
type Task func(ctx context.Context, output string) (Outcome, error)

// Outcome is what a finished Task reports.
type Outcome struct {
	Output string
	Result any
}

// Spec describes a job to submit.
type Spec struct {
	Kind Kind
	// Output is the destination path. When empty the storage picks one,
	// named after the job ID with Ext appended.
	Output   string
	Ext      string
	PushToS3 bool
	Run      Task
}

// Service runs submitted jobs in the background, at most maxConcurrent at a
// time, and records their state in a Repository.
type Service struct {
	repo      Repository
	store     storage.Storage
	logger    *slog.Logger
	sem       chan struct{}
	timeout   time.Duration
	retention time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// Option configures a Service.
type Option func(*Service)

// WithMaxConcurrent sets the number of jobs that may run at once.
func WithMaxConcurrent(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// WithTimeout bounds the run time of each job. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetention removes finished jobs once they are older than d. Zero keeps
// them for the life of the process.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(repo Repository, store storage.Storage, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:    repo,
		store:   store,
		logger:  slog.Default(),
		sem:     make(chan struct{}, DefaultMaxConcurrent),
		ctx:     ctx,
		cancel:  cancel,
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retention > 0 {
		s.wg.Add(1)
		go s.janitor()
	}
	return s
}

// Submit persists a new job for spec and starts it in the background. The
// returned job is a snapshot in IN_QUEUE state.
func (s *Service) Submit(ctx context.Context, spec Spec) (*Job, error) {
	if !spec.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, spec.Kind)
	}
	if spec.Run == nil {
		return nil, ErrNoTask
	}

	job := New(spec.Kind)
	job.PushToS3 = spec.PushToS3
	job.OutputPath = spec.Output
	if job.OutputPath == "" {
		ext := spec.Ext
		if ext == "" {
			ext = ".mp4"
		}
		job.OutputPath = s.store.OutputPath(job.ID + ext)
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	s.cancels[job.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	if err := s.repo.Save(ctx, job); err != nil {
		s.forget(job.ID)
		s.wg.Done()
		return nil, fmt.Errorf("save job: %w", err)
	}

	s.logger.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("kind", string(job.Kind)),
		slog.String("output", job.OutputPath),
		slog.Bool("push_to_s3", job.PushToS3),
	)

	snapshot := job.Clone()
	go s.run(runCtx, job, spec.Run)
	return snapshot, nil
}

// Get retrieves a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all jobs, oldest first.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Cancel stops a queued or running job. Cancelling a finished job returns
// ErrInvalidTransition.
func (s *Service) Cancel(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrInvalidTransition
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// Shutdown cancels every job and waits for them to settle or for ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Prune removes finished jobs older than the retention period.
func (s *Service) Prune(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	n, err := s.repo.Prune(ctx, time.Now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	if n > 0 {
		s.logger.Debug("pruned finished jobs", slog.Int("count", n), slog.Duration("retention", s.retention))
	}
	return n, nil
}

func (s *Service) janitor() {
	defer s.wg.Done()
	ticker := time.NewTicker(max(s.retention/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Prune(s.ctx); err != nil {
				s.logger.Warn("failed to prune jobs", slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Service) run(ctx context.Context, job *Job, task Task) {
	defer s.wg.Done()
	defer s.forget(job.ID)

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		_ = job.Cancel()
		s.save(job)
		s.logger.Info("job cancelled before start", slog.String("job_id", job.ID))
		return
	}

	if err := job.Start(); err != nil {
		s.logger.Error("failed to start job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		return
	}
	s.save(job)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	outcome, err := task(ctx, job.OutputPath)
	if err == nil {
		err = s.publish(ctx, job, &outcome)
	}
	s.finish(ctx, job, outcome, err)
	s.save(job)

	s.logger.Info("job finished",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.GetStatus())),
		slog.Duration("elapsed", time.Since(start)),
	)
}

func (s *Service) publish(ctx context.Context, job *Job, outcome *Outcome) error {
	if outcome.Output == "" {
		outcome.Output = job.OutputPath
	}
	if !job.PushToS3 {
		return nil
	}
	key := "outputs/" + job.ID + filepath.Ext(outcome.Output)
	url, err := s.store.Publish(ctx, outcome.Output, key)
	if err != nil {
		return fmt.Errorf("publish output: %w", err)
	}
	job.mu.Lock()
	job.OutputURL = url
	job.mu.Unlock()
	return nil
}

func (s *Service) finish(ctx context.Context, job *Job, outcome Outcome, err error) {
	job.mu.Lock()
	if outcome.Output != "" {
		job.OutputPath = outcome.Output
	}
	url := job.OutputURL
	job.mu.Unlock()

	switch {
	case err == nil:
		_ = job.Complete(url, outcome.Result)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		_ = job.Timeout(err.Error())
		s.logger.Warn("job timed out", slog.String("job_id", job.ID), slog.Duration("timeout", s.timeout))
	case errors.Is(ctx.Err(), context.Canceled):
		_ = job.Cancel()
	default:
		_ = job.Fail(err.Error(), mediaerr.Code(err))
		s.logger.Error("job failed",
			slog.String("job_id", job.ID),
			slog.String("code", mediaerr.Code(err)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) save(job *Job) {
	// Job state must be recorded even when the job's own context is done.
	if err := s.repo.Save(context.Background(), job); err != nil {
		s.logger.Error("failed to save job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}
