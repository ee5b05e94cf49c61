package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-labelwatch/breaker"
	"github.com/goliatone/go-labelwatch/core"
	"github.com/goliatone/go-labelwatch/transport"
)

// Call is one outbound request. It is invoked at most once per attempt.
type Call func(ctx context.Context) (*transport.Response, error)

type Config struct {
	InterCallDelay    time.Duration
	ResetBuffer       time.Duration
	MaxRetries        int
	Backoff           core.Backoff
	DefaultRetryAfter time.Duration
	// MaxQueued bounds first-time submissions waiting in the queue. Zero
	// means unbounded. Retries are always re-admitted.
	MaxQueued int
	Breaker   *breaker.Breaker
	Logger    core.Logger
	Metrics   core.MetricsRecorder
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

func DefaultConfig() Config {
	return Config{
		InterCallDelay:    100 * time.Millisecond,
		ResetBuffer:       time.Second,
		MaxRetries:        3,
		Backoff:           core.Backoff{Base: time.Second, Max: 2 * time.Minute, Jitter: time.Second},
		DefaultRetryAfter: time.Minute,
		MaxQueued:         1000,
	}
}

// ConfigFrom maps service configuration onto client settings.
func ConfigFrom(cfg core.ClientConfig) Config {
	return Config{
		InterCallDelay:    cfg.InterCallDelay,
		ResetBuffer:       cfg.ResetBuffer,
		MaxRetries:        cfg.MaxRetries,
		Backoff:           core.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax, Jitter: cfg.BackoffJitter},
		DefaultRetryAfter: cfg.DefaultRetryAfter,
		MaxQueued:         cfg.MaxQueued,
	}
}

type result struct {
	res *transport.Response
	err error
}

type request struct {
	ctx        context.Context
	call       Call
	retries    int
	enqueuedAt time.Time
	done       chan result
}

func (r *request) finish(res *transport.Response, err error) {
	select {
	case r.done <- result{res: res, err: err}:
	default:
	}
}

// Client serialises every call to the repository host through one queue.
// A single drain goroutine runs at a time; retried requests are pushed back
// at the head so they run before later first-time submissions.
type Client struct {
	cfg     Config
	tracker *Tracker
	logger  core.Logger
	metrics core.MetricsRecorder

	mu       sync.Mutex
	queue    *Deque[*request]
	lastCall time.Time
	closed   bool

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewClient uses cfg as given; start from DefaultConfig for the standard
// pacing and retry budget.
func NewClient(cfg Config) *Client {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:     cfg,
		tracker: NewTracker(cfg.Now),
		logger:  core.ResolveLogger("labelwatch.ratelimit", nil, cfg.Logger),
		metrics: core.EnsureMetrics(cfg.Metrics),
		queue:   NewDeque[*request](16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Submit queues call and blocks until it resolves or ctx is done. A request
// abandoned by its caller is skipped when it reaches the head of the queue.
func (c *Client) Submit(ctx context.Context, call Call) (*transport.Response, error) {
	if c == nil {
		return nil, core.Internal("ratelimit: client is nil", nil)
	}
	if call == nil {
		return nil, core.BadInput("ratelimit: call is required", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req := &request{
		ctx:        ctx,
		call:       call,
		enqueuedAt: c.cfg.Now(),
		done:       make(chan result, 1),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, core.Internal("ratelimit: client is closed", nil)
	}
	if c.cfg.MaxQueued > 0 && c.queue.Len() >= c.cfg.MaxQueued {
		c.mu.Unlock()
		c.metrics.IncCounter(ctx, "labelwatch.client.rejected", 1, map[string]string{"reason": "queue_full"})
		return nil, core.QueueFull("outbound request", c.cfg.MaxQueued)
	}
	c.queue.PushBack(req)
	c.mu.Unlock()

	c.trigger()

	select {
	case out := <-req.done:
		return out.res, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) State() State {
	return c.tracker.Snapshot()
}

func (c *Client) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

func (c *Client) Running() bool {
	return c.running.Load()
}

// Close rejects queued requests, interrupts any pending sleep and waits for
// the drain loop to exit.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		req, ok := c.queue.PopFront()
		if !ok {
			return
		}
		req.finish(nil, core.Internal("ratelimit: client closed before request ran", nil))
	}
}

func (c *Client) trigger() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go c.drain()
}

func (c *Client) drain() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		if c.closed {
			c.running.Store(false)
			c.mu.Unlock()
			return
		}
		req, ok := c.queue.PopFront()
		if !ok {
			c.running.Store(false)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		c.process(req)
	}
}

func (c *Client) process(req *request) {
	if err := req.ctx.Err(); err != nil {
		req.finish(nil, err)
		return
	}
	if err := c.pace(); err != nil {
		req.finish(nil, err)
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.finish(nil, err)
		return
	}

	startedAt := c.cfg.Now()
	res, err := c.invoke(req)
	c.mu.Lock()
	c.lastCall = c.cfg.Now()
	c.mu.Unlock()

	header := responseHeader(res, err)
	c.tracker.Update(header)

	class := Classify(err)
	c.metrics.IncCounter(req.ctx, "labelwatch.client.calls", 1, map[string]string{"class": class.String()})
	c.metrics.ObserveHistogram(req.ctx, "labelwatch.client.duration_ms",
		float64(c.cfg.Now().Sub(startedAt).Milliseconds()), map[string]string{"class": class.String()})

	switch {
	case class == ClassNone:
		req.finish(res, nil)
	case class == ClassPrimaryLimit:
		wait := RetryAfter(header, c.cfg.Now(), c.cfg.DefaultRetryAfter)
		core.Log(req.ctx, c.logger, core.LevelWarn, "primary rate limit hit, pausing queue", map[string]any{
			"wait_ms": wait.Milliseconds(),
		})
		c.retryAfterSleep(req, wait, err)
	case class.Backoff():
		if req.retries >= c.cfg.MaxRetries {
			core.Log(req.ctx, c.logger, core.LevelError, "remote call retries exhausted", map[string]any{
				"class":   class.String(),
				"retries": req.retries,
				"error":   err.Error(),
			})
			req.finish(nil, normalize(err, class, header, c.cfg.Now()))
			return
		}
		delay := c.cfg.Backoff.Delay(req.retries)
		req.retries++
		core.Log(req.ctx, c.logger, core.LevelWarn, "remote call failed, retrying", map[string]any{
			"class":    class.String(),
			"retry":    req.retries,
			"delay_ms": delay.Milliseconds(),
		})
		c.retryAfterSleep(req, delay, err)
	case class == ClassBreakerOpen:
		req.finish(nil, err)
	default:
		req.finish(nil, normalize(err, class, header, c.cfg.Now()))
	}
}

// retryAfterSleep blocks the drain loop for wait, then puts req back at the
// head of the queue.
func (c *Client) retryAfterSleep(req *request, wait time.Duration, cause error) {
	if err := c.cfg.Sleep(c.ctx, wait); err != nil {
		req.finish(nil, fmt.Errorf("ratelimit: retry interrupted: %w", cause))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		req.finish(nil, core.Internal("ratelimit: client closed before retry ran", nil))
		return
	}
	c.queue.PushFront(req)
}

// pace enforces the inter-call delay and the primary budget pause.
func (c *Client) pace() error {
	c.mu.Lock()
	last := c.lastCall
	c.mu.Unlock()
	if !last.IsZero() && c.cfg.InterCallDelay > 0 {
		if wait := c.cfg.InterCallDelay - c.cfg.Now().Sub(last); wait > 0 {
			if err := c.cfg.Sleep(c.ctx, wait); err != nil {
				return err
			}
		}
	}
	if wait := c.tracker.WaitDuration(c.cfg.ResetBuffer); wait > 0 {
		core.Log(c.ctx, c.logger, core.LevelInfo, "rate limit budget exhausted, waiting for reset", map[string]any{
			"wait_ms": wait.Milliseconds(),
		})
		if err := c.cfg.Sleep(c.ctx, wait); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) invoke(req *request) (*transport.Response, error) {
	if c.cfg.Breaker == nil {
		return req.call(req.ctx)
	}
	return breaker.Run(req.ctx, c.cfg.Breaker, func(ctx context.Context) (*transport.Response, error) {
		return req.call(ctx)
	})
}

func responseHeader(res *transport.Response, err error) http.Header {
	if res != nil && res.Header != nil {
		return res.Header
	}
	if apiErr, ok := transport.AsAPIError(err); ok && apiErr.Header != nil {
		return apiErr.Header
	}
	return http.Header{}
}

func normalize(err error, class Class, header http.Header, now time.Time) error {
	if apiErr, ok := transport.AsAPIError(err); ok {
		retryAfter := time.Duration(0)
		if class == ClassPrimaryLimit || class == ClassSecondaryLimit {
			retryAfter = RetryAfter(header, now, 0)
		}
		return core.RemoteAPIError(apiErr, apiErr.StatusCode, retryAfter, class.Backoff(), class.String())
	}
	if _, ok := transport.AsNetworkError(err); ok {
		return core.NetworkError(err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
