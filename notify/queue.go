package notify

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-labelwatch/core"
)

type Config struct {
	ProcessInterval time.Duration
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	// MaxJobs bounds queued jobs. Zero means unbounded.
	MaxJobs  int
	Renderer Renderer
	Hooks    []Hook
	Logger   core.Logger
	Metrics  core.MetricsRecorder
	Now      func() time.Time
}

func DefaultConfig() Config {
	return Config{
		ProcessInterval: 10 * time.Second,
		MaxAttempts:     3,
		BaseDelay:       5 * time.Second,
		MaxDelay:        5 * time.Minute,
		MaxJobs:         10_000,
	}
}

// ConfigFrom maps service configuration onto queue settings.
func ConfigFrom(cfg core.DispatchConfig) Config {
	return Config{
		ProcessInterval: cfg.ProcessInterval,
		MaxAttempts:     cfg.MaxAttempts,
		BaseDelay:       cfg.BaseDelay,
		MaxDelay:        cfg.MaxDelay,
		MaxJobs:         cfg.MaxJobs,
	}
}

// PassStats summarises one processing pass.
type PassStats struct {
	Skipped   bool
	Eligible  int
	Delivered int
	Retried   int
	Dropped   int
}

type entry struct {
	job core.NotificationJob
	seq uint64
}

type Queue struct {
	messenger core.DirectMessenger
	cfg       Config
	renderer  Renderer
	hooks     hookChain
	logger    core.Logger
	metrics   core.MetricsRecorder
	backoff   core.Backoff

	mu        sync.Mutex
	jobs      map[string]*entry
	seq       uint64
	delivered int64
	dropped   int64

	running atomic.Bool

	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewQueue(messenger core.DirectMessenger, cfg Config) (*Queue, error) {
	if messenger == nil {
		return nil, core.Internal("notify: direct messenger is required", nil)
	}
	defaults := DefaultConfig()
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = defaults.ProcessInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.MaxJobs < 0 {
		cfg.MaxJobs = 0
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = DefaultRenderer{}
	}
	hooks := make(hookChain, 0, len(cfg.Hooks))
	for _, hook := range cfg.Hooks {
		if hook != nil {
			hooks = append(hooks, hook)
		}
	}
	return &Queue{
		messenger: messenger,
		cfg:       cfg,
		renderer:  renderer,
		hooks:     hooks,
		logger:    core.ResolveLogger("labelwatch.notify", nil, cfg.Logger),
		metrics:   core.EnsureMetrics(cfg.Metrics),
		backoff:   core.Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay},
		jobs:      make(map[string]*entry),
	}, nil
}

func (q *Queue) EnqueueIssueNotification(
	ctx context.Context,
	userID string,
	issue core.IssueInfo,
	triggeredLabel string,
) (core.NotificationJob, error) {
	issueCopy := issue.Clone()
	return q.enqueue(ctx, core.NotificationJob{
		UserID:         userID,
		Kind:           core.NotificationKindIssue,
		Issue:          &issueCopy,
		TriggeredLabel: strings.TrimSpace(triggeredLabel),
	})
}

func (q *Queue) EnqueueErrorNotification(ctx context.Context, userID string, message string) (core.NotificationJob, error) {
	if strings.TrimSpace(message) == "" {
		return core.NotificationJob{}, core.BadInput("notify: error message is required", nil)
	}
	return q.enqueue(ctx, core.NotificationJob{
		UserID:  userID,
		Kind:    core.NotificationKindError,
		Message: message,
	})
}

func (q *Queue) enqueue(ctx context.Context, job core.NotificationJob) (core.NotificationJob, error) {
	job.UserID = strings.TrimSpace(job.UserID)
	if job.UserID == "" {
		return core.NotificationJob{}, core.BadInput("notify: user id is required", nil)
	}
	now := q.cfg.Now()
	job.ID = uuid.NewString()
	job.Attempts = 0
	job.MaxAttempts = q.cfg.MaxAttempts
	job.CreatedAt = now
	job.NextEligibleAt = now

	q.mu.Lock()
	if q.cfg.MaxJobs > 0 && len(q.jobs) >= q.cfg.MaxJobs {
		q.mu.Unlock()
		q.metrics.IncCounter(ctx, "labelwatch.notify.rejected", 1, map[string]string{"reason": "queue_full"})
		return core.NotificationJob{}, core.QueueFull("notification", q.cfg.MaxJobs)
	}
	q.seq++
	q.jobs[job.ID] = &entry{job: job, seq: q.seq}
	q.mu.Unlock()

	q.metrics.IncCounter(ctx, "labelwatch.notify.enqueued", 1, map[string]string{"kind": string(job.Kind)})
	core.Log(ctx, q.logger, core.LevelDebug, "notification enqueued", map[string]any{
		"job_id":  job.ID,
		"user_id": job.UserID,
		"kind":    string(job.Kind),
	})
	return job.Clone(), nil
}

// Remove deletes a job regardless of its state.
func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[id]; !ok {
		return false
	}
	delete(q.jobs, id)
	return true
}

func (q *Queue) Get(id string) (core.NotificationJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	current, ok := q.jobs[id]
	if !ok {
		return core.NotificationJob{}, false
	}
	return current.job.Clone(), true
}

func (q *Queue) Stats() core.QueueStats {
	now := q.cfg.Now()
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := core.QueueStats{
		Total:     len(q.jobs),
		Delivered: q.delivered,
		Dropped:   q.dropped,
	}
	var oldest time.Time
	for _, current := range q.jobs {
		if current.job.NextEligibleAt.After(now) {
			stats.Pending++
		} else {
			stats.Eligible++
		}
		if current.job.Attempts > 0 {
			stats.Failed++
		}
		if oldest.IsZero() || current.job.CreatedAt.Before(oldest) {
			oldest = current.job.CreatedAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestAge = now.Sub(oldest)
	}
	return stats
}

// ProcessPass attempts every job eligible at the start of the pass, oldest
// first. Only one pass runs at a time; an overlapping call is skipped.
func (q *Queue) ProcessPass(ctx context.Context) (PassStats, error) {
	if !q.running.CompareAndSwap(false, true) {
		return PassStats{Skipped: true}, nil
	}
	defer q.running.Store(false)

	eligible := q.snapshotEligible(q.cfg.Now())
	stats := PassStats{Eligible: len(eligible)}
	for _, job := range eligible {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		switch q.attempt(ctx, job) {
		case outcomeDelivered:
			stats.Delivered++
		case outcomeRetried:
			stats.Retried++
		case outcomeDropped:
			stats.Dropped++
		}
	}
	if stats.Eligible > 0 {
		core.Log(ctx, q.logger, core.LevelDebug, "notification pass complete", map[string]any{
			"eligible":  stats.Eligible,
			"delivered": stats.Delivered,
			"retried":   stats.Retried,
			"dropped":   stats.Dropped,
		})
	}
	return stats, nil
}

func (q *Queue) Processing() bool {
	return q.running.Load()
}

// Start runs ProcessPass every ProcessInterval until ctx is done or Stop is
// called.
func (q *Queue) Start(ctx context.Context) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	if q.cancel != nil {
		return core.Internal("notify: queue already started", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	q.cancel = cancel
	q.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(q.cfg.ProcessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := q.ProcessPass(runCtx); err != nil && runCtx.Err() == nil {
					core.Log(runCtx, q.logger, core.LevelError, "notification pass failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
	core.Log(ctx, q.logger, core.LevelInfo, "notification queue started", map[string]any{
		"interval_ms": q.cfg.ProcessInterval.Milliseconds(),
	})
	return nil
}

func (q *Queue) Stop() {
	q.lifecycleMu.Lock()
	cancel, done := q.cancel, q.done
	q.cancel, q.done = nil, nil
	q.lifecycleMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeDelivered
	outcomeRetried
	outcomeDropped
)

func (q *Queue) snapshotEligible(now time.Time) []core.NotificationJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries := make([]*entry, 0, len(q.jobs))
	for _, current := range q.jobs {
		if !current.job.NextEligibleAt.After(now) {
			entries = append(entries, current)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].job.CreatedAt.Equal(entries[j].job.CreatedAt) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].job.CreatedAt.Before(entries[j].job.CreatedAt)
	})
	jobs := make([]core.NotificationJob, 0, len(entries))
	for _, current := range entries {
		jobs = append(jobs, current.job.Clone())
	}
	return jobs
}

func (q *Queue) attempt(ctx context.Context, job core.NotificationJob) outcome {
	startedAt := q.cfg.Now()
	event := Event{Job: job, Attempt: job.Attempts + 1, StartedAt: startedAt}
	q.hooks.start(ctx, event)

	err := q.deliver(ctx, job)
	event.Duration = q.cfg.Now().Sub(startedAt)
	if err == nil {
		q.mu.Lock()
		_, present := q.jobs[job.ID]
		if present {
			delete(q.jobs, job.ID)
			q.delivered++
		}
		q.mu.Unlock()
		if !present {
			return outcomeSkipped
		}
		q.metrics.IncCounter(ctx, "labelwatch.notify.delivered", 1, map[string]string{"kind": string(job.Kind)})
		q.hooks.success(ctx, event)
		return outcomeDelivered
	}

	event.Err = err
	q.mu.Lock()
	current, ok := q.jobs[job.ID]
	if !ok {
		q.mu.Unlock()
		return outcomeSkipped
	}
	current.job.Attempts++
	current.job.LastError = err.Error()
	attempts := current.job.Attempts
	if attempts >= q.cfg.MaxAttempts {
		delete(q.jobs, job.ID)
		q.dropped++
		q.mu.Unlock()

		event.Job.Attempts = attempts
		q.metrics.IncCounter(ctx, "labelwatch.notify.dropped", 1, map[string]string{"kind": string(job.Kind)})
		core.Log(ctx, q.logger, core.LevelError, "notification dropped after max attempts", map[string]any{
			"job_id":   job.ID,
			"user_id":  job.UserID,
			"attempts": attempts,
			"error":    core.DeliveryFailure(err, job.ID, job.UserID, attempts).Error(),
		})
		q.hooks.failure(ctx, event)
		return outcomeDropped
	}
	delay := q.backoff.AttemptDelay(attempts)
	current.job.NextEligibleAt = q.cfg.Now().Add(delay)
	q.mu.Unlock()

	event.Job.Attempts = attempts
	event.Delay = delay
	q.metrics.IncCounter(ctx, "labelwatch.notify.retried", 1, map[string]string{"kind": string(job.Kind)})
	core.Log(ctx, q.logger, core.LevelWarn, "notification delivery failed, will retry", map[string]any{
		"job_id":   job.ID,
		"user_id":  job.UserID,
		"attempts": attempts,
		"delay_ms": delay.Milliseconds(),
		"error":    err.Error(),
	})
	q.hooks.retry(ctx, event)
	return outcomeRetried
}

func (q *Queue) deliver(ctx context.Context, job core.NotificationJob) error {
	rendered, err := q.renderer.Render(job)
	if err != nil {
		return err
	}
	return q.messenger.SendDirectMessage(ctx, job.UserID, rendered)
}

var (
	_ core.NotificationEnqueuer = (*Queue)(nil)
	_ core.QueueStatsReader     = (*Queue)(nil)
)
