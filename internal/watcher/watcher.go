// Package watcher waits for tasks to reach a terminal status. It owns the
// polling and retry policy that the Task Client deliberately leaves to
// its callers.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"
	"github.com/you-humble/resinkit/pkg/task"

	"github.com/avast/retry-go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var ErrWatchTimeout = errors.New("watch timed out")

type StatusTracker interface {
	UpdateStatus(ctx context.Context, id string, status domain.Status, phase domain.Phase) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, taskID string, prev, cur domain.Status, phase domain.Phase) error
}

type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	RateLimit   float64
	Burst       int
	Retries     uint
	RetryDelay  time.Duration
	Concurrency int
}

// Change is one observed status transition.
type Change struct {
	TaskID   string
	Previous domain.Status
	Status   domain.Status
	Phase    domain.Phase
	At       time.Time
}

// Outcome is the last known state of one watched task.
type Outcome struct {
	TaskID  string
	Details domain.TaskDetails
	Phase   domain.Phase
	Err     error
}

type Watcher struct {
	api       task.API
	cfg       Config
	lifecycle domain.Lifecycle
	limiter   *rate.Limiter
	tracker   StatusTracker
	events    StatusPublisher
	onChange  func(Change)
	logger    *slog.Logger
}

type Option func(*Watcher)

func WithTracker(t StatusTracker) Option     { return func(w *Watcher) { w.tracker = t } }
func WithPublisher(p StatusPublisher) Option { return func(w *Watcher) { w.events = p } }
func WithOnChange(fn func(Change)) Option    { return func(w *Watcher) { w.onChange = fn } }

func WithLifecycle(l domain.Lifecycle) Option {
	return func(w *Watcher) { w.lifecycle = l.WithDefaults() }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

func New(api task.API, cfg Config, opts ...Option) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}

	w := &Watcher{
		api:       api,
		cfg:       cfg,
		lifecycle: domain.DefaultLifecycle(),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch polls every id until it is terminal, not found, or the configured
// timeout passes. Outcomes are in the order of ids. The returned error
// joins the per-task errors; errors.Is(err, ErrWatchTimeout) reports a
// deadline.
func (w *Watcher) Watch(ctx context.Context, ids ...string) ([]Outcome, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	wctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	out := make([]Outcome, len(ids))
	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(w.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = w.watchOne(gctx, ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	errs := make([]error, 0, len(out))
	for _, o := range out {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return out, errors.Join(errs...)
}

func (w *Watcher) watchOne(ctx, parent context.Context, id string) Outcome {
	res := Outcome{TaskID: id}

	c, err := task.New(id, w.api, task.WithLifecycle(w.lifecycle), task.WithLogger(w.logger))
	if err != nil {
		res.Err = err
		return res
	}
	l := w.logger.With(slog.String("task_id", id))

	var prev domain.Status
	for {
		d, err := w.poll(ctx, c)
		if err != nil {
			res.Err = w.stopReason(parent, id, err)
			l.Debug("watch stopped", slog.String("error", res.Err.Error()))
			return res
		}

		res.Details = d
		res.Phase = w.lifecycle.Classify(d.Status)
		if d.Status != prev {
			w.changed(ctx, Change{
				TaskID:   id,
				Previous: prev,
				Status:   d.Status,
				Phase:    res.Phase,
				At:       time.Now(),
			})
			prev = d.Status
		}
		if res.Phase.Terminal() {
			return res
		}

		select {
		case <-ctx.Done():
			res.Err = w.stopReason(parent, id, ctx.Err())
			return res
		case <-time.After(w.cfg.Interval):
		}
	}
}

// poll refreshes details, retrying only transport failures.
func (w *Watcher) poll(ctx context.Context, c *task.Client) (domain.TaskDetails, error) {
	var d domain.TaskDetails
	err := retry.Do(
		func() error {
			if err := w.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// next token lies past the deadline
				return context.DeadlineExceeded
			}
			var err error
			d, err = c.Details(ctx, true)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(w.cfg.Retries),
		retry.Delay(w.cfg.RetryDelay),
		retry.RetryIf(domain.IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			w.logger.Warn("poll failed, retrying",
				slog.String("task_id", c.ID()),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
	return d, err
}

func (w *Watcher) stopReason(parent context.Context, id string, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: task %s after %s", ErrWatchTimeout, id, w.cfg.Timeout)
	}
	return err
}

func (w *Watcher) changed(ctx context.Context, ch Change) {
	w.logger.Info("task status changed",
		slog.String("task_id", ch.TaskID),
		slog.String("previous", ch.Previous.String()),
		slog.String("status", ch.Status.String()),
		slog.String("phase", ch.Phase.String()),
	)
	if w.tracker != nil {
		if err := w.tracker.UpdateStatus(ctx, ch.TaskID, ch.Status, ch.Phase); err != nil {
			w.logger.Warn("tracker update", slog.String("task_id", ch.TaskID), slog.String("error", err.Error()))
		}
	}
	if w.events != nil {
		if err := w.events.PublishStatus(ctx, ch.TaskID, ch.Previous, ch.Status, ch.Phase); err != nil {
			w.logger.Warn("publish status", slog.String("task_id", ch.TaskID), slog.String("error", err.Error()))
		}
	}
	if w.onChange != nil {
		w.onChange(ch)
	}
}
