package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"sinapsisdata/internal/util"
	"sinapsisdata/pkg/ai"
	"sinapsisdata/pkg/auth"
	"sinapsisdata/pkg/domain"
	"sinapsisdata/pkg/generation"
	"sinapsisdata/pkg/queue"
	"sinapsisdata/pkg/storage"
	"sinapsisdata/pkg/store"
)

// Config holds runtime dependencies for the report service core.
type Config struct {
	Store     store.Store
	Objects   storage.ObjectStore
	Generator ai.Generator
	Sessions  store.SessionStore
	Policy    generation.Policy
	// Queue dispatches jobs across instances. Nil runs every job in a
	// detached goroutine of this process.
	Queue *queue.RedisJobQueue
	// GenerationTimeout bounds one provider call. A PROCESSING report left
	// untouched for longer than this plus staleGrace counts as abandoned.
	GenerationTimeout time.Duration

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// App is the report engine: job lifecycle, feedback loop and the CRUD
// around projects and reports.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	generator ai.Generator
	sessions  store.SessionStore
	prompts   *generation.Builder
	feedback  *FeedbackAccessor
	queue     *queue.RedisJobQueue
	timeout   time.Duration
	now       func() time.Time
	inflight  sync.WaitGroup
	// jobDone is signalled after each inline job settles. Tests use it.
	jobDone func(reportID string)
}

// New constructs the application and seeds the bootstrap admin when the
// user table is empty.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	a := &App{
		store:     cfg.Store,
		objects:   cfg.Objects,
		generator: cfg.Generator,
		sessions:  cfg.Sessions,
		prompts:   generation.NewBuilder(cfg.Policy),
		feedback:  NewFeedbackAccessor(cfg.Store),
		queue:     cfg.Queue,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if err := a.ensureBootstrapAdmin(cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		return nil, err
	}
	return a, nil
}

// StartWorkers consumes queued jobs until ctx ends. It is a no-op in
// inline dispatch mode.
func (a *App) StartWorkers(ctx context.Context, concurrency int) {
	if a.queue == nil {
		return
	}
	a.queue.Start(ctx, concurrency, a.HandleJob)
}

// staleGrace covers the ingestion and writes around the provider call.
const staleGrace = time.Minute

// StaleAfter is how long a PROCESSING report may go untouched before it is
// treated as abandoned.
func (a *App) StaleAfter() time.Duration { return a.timeout + staleGrace }

// busy reports whether a job still owns the report.
func (a *App) busy(r domain.Report) bool {
	return r.Status == domain.StatusProcessing && a.now().Sub(r.UpdatedAt) < a.StaleAfter()
}

// RecoverStale settles reports left PROCESSING by a process that stopped
// before its jobs did. Interrupted refines get their document back.
func (a *App) RecoverStale(ctx context.Context) (int, error) {
	n, err := a.store.RecoverStale(a.now().Add(-a.StaleAfter()), ErrInterrupted.Error())
	if err != nil {
		return 0, fmt.Errorf("recover stale reports: %w", err)
	}
	if n > 0 {
		util.LoggerFromContext(ctx).Warn("stale reports recovered", "count", n)
	}
	return n, nil
}

// Drain waits for inline jobs started by this process to settle.
func (a *App) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleJob runs one queued job. Generation failures already resolved the
// report to ERROR, so only a failure to record the outcome is returned.
func (a *App) HandleJob(ctx context.Context, job queue.Job) error {
	return a.execute(ctx, job.ReportID, job.Kind)
}

// GetJob returns the dispatch status of a queued job.
func (a *App) GetJob(ctx context.Context, actor domain.User, jobID string) (queue.Job, error) {
	if a.queue == nil {
		return queue.Job{}, ErrJobsUnavailable
	}
	job, ok, err := a.queue.GetJob(ctx, jobID)
	if err != nil {
		return queue.Job{}, fmt.Errorf("get job: %w", err)
	}
	if !ok {
		return queue.Job{}, ErrJobNotFound
	}
	if _, _, err := a.reportForActor(actor, job.ReportID); err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return job, nil
		}
		return queue.Job{}, err
	}
	return job, nil
}

// dispatch hands a PROCESSING report to a worker and returns the queue job
// id, which is empty for inline dispatch.
func (a *App) dispatch(ctx context.Context, reportID, kind string) (string, error) {
	if a.queue != nil {
		job, err := a.queue.Enqueue(ctx, reportID, kind)
		if err != nil {
			return "", fmt.Errorf("enqueue %s job: %w", kind, err)
		}
		return job.ID, nil
	}
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		defer func() {
			if a.jobDone != nil {
				a.jobDone(reportID)
			}
		}()
		if err := a.execute(context.Background(), reportID, kind); err != nil {
			slog.Error("job outcome not recorded", "report_id", reportID, "kind", kind, "err", err)
		}
	}()
	return "", nil
}

// execute is the outer boundary of a generation job: whatever happens the
// report ends READY or ERROR, and a panic becomes an ERROR too.
func (a *App) execute(ctx context.Context, reportID, kind string) (err error) {
	logger := slog.With("report_id", reportID, "kind", kind)
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("job panicked", "panic", rec)
			err = a.fail(logger, reportID, fmt.Errorf("internal error: %v", rec))
		}
	}()

	claimed, err := a.store.ClaimReport(reportID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("report deleted before job ran")
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim report: %w", err)
	}
	if !claimed {
		logger.Info("report settled or held by another worker, skipping")
		return nil
	}

	var runErr error
	switch kind {
	case queue.KindGenerate:
		runErr = a.runReport(ctx, logger, reportID)
	case queue.KindOverview:
		runErr = a.runOverview(ctx, logger, reportID)
	default:
		runErr = fmt.Errorf("unknown job kind %q", kind)
	}
	if runErr == nil {
		return nil
	}
	if errors.Is(runErr, store.ErrNotFound) {
		logger.Warn("report deleted while processing", "err", runErr)
		return nil
	}
	return a.fail(logger, reportID, runErr)
}

func (a *App) fail(logger *slog.Logger, reportID string, cause error) error {
	logger.Warn("job failed", "err", cause)
	err := a.store.FailReport(reportID, failureMessage(cause))
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("report deleted while processing", "err", cause)
		return nil
	}
	return err
}

// failureMessage is the short errorMessage persisted on the report.
func failureMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = ErrGenerationFailed.Error()
	}
	return util.Excerpt(msg, 500)
}

func (a *App) ensureBootstrapAdmin(email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil
	}
	count, err := a.store.UserCount()
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}
	now := a.now()
	admin := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         "Administrator",
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Status:       domain.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(admin); err != nil {
		return fmt.Errorf("save bootstrap admin: %w", err)
	}
	slog.Info("bootstrap admin created", "email", email)
	return nil
}
