// Package task provides the Task Client: a cache-aware view of one
// server-side task. It never polls on its own and never retries; waiting
// and retry policy belong to the caller.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/you-humble/resinkit/pkg/domain"

	"golang.org/x/sync/singleflight"
)

// API is the subset of the transport the Task Client needs.
type API interface {
	TaskDetails(ctx context.Context, taskID string) (domain.TaskDetails, error)
	TaskResults(ctx context.Context, taskID string) (domain.ResultPayload, error)
	CancelTask(ctx context.Context, taskID string, r domain.CancelRequest) (domain.CancelAck, error)
	TaskLogs(ctx context.Context, taskID string, q domain.LogQuery) (domain.LogPage, error)
}

type Client struct {
	id        string
	api       API
	lifecycle domain.Lifecycle
	logger    *slog.Logger

	flight singleflight.Group

	mu      sync.Mutex
	details *domain.TaskDetails
	results *domain.ResultPayload
}

type Option func(*Client)

// WithLifecycle overrides which statuses count as terminal.
func WithLifecycle(l domain.Lifecycle) Option {
	return func(c *Client) { c.lifecycle = l.WithDefaults() }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New performs no network call.
func New(taskID string, api API, opts ...Option) (*Client, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, domain.ErrInvalidTaskID
	}
	if api == nil {
		return nil, fmt.Errorf("task %s: nil api", taskID)
	}

	c := &Client{
		id:        taskID,
		api:       api,
		lifecycle: domain.DefaultLifecycle(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("task_id", taskID))
	return c, nil
}

func (c *Client) ID() string { return c.id }

// Details returns the cached snapshot unless forceRefresh is set or none
// exists yet. Concurrent non-forced first reads share one request; each
// caller still stops waiting when its own ctx ends.
func (c *Client) Details(ctx context.Context, forceRefresh bool) (domain.TaskDetails, error) {
	if forceRefresh {
		return c.fetchDetails(ctx)
	}
	if d, ok := c.cachedDetails(); ok {
		return d, nil
	}

	// The shared fetch must outlive whichever caller started it; the
	// transport timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan("details", func() (any, error) {
		if d, ok := c.cachedDetails(); ok {
			return d, nil
		}
		return c.fetchDetails(shared)
	})

	select {
	case <-ctx.Done():
		return domain.TaskDetails{}, c.fail("get_details", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.TaskDetails{}, res.Err
		}
		return res.Val.(domain.TaskDetails), nil
	}
}

func (c *Client) fetchDetails(ctx context.Context) (domain.TaskDetails, error) {
	d, err := c.api.TaskDetails(ctx, c.id)
	if err != nil {
		c.logger.Debug("fetch details", slog.String("error", err.Error()))
		return domain.TaskDetails{}, c.fail("get_details", err)
	}
	if d.TaskID == "" {
		d.TaskID = c.id
	}

	c.mu.Lock()
	prev := c.details
	c.details = &d
	c.mu.Unlock()

	if prev == nil || prev.Status != d.Status {
		c.logger.Debug("task status", slog.String("status", d.Status.String()))
	}
	return d, nil
}

func (c *Client) cachedDetails() (domain.TaskDetails, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.details == nil {
		return domain.TaskDetails{}, false
	}
	return *c.details, true
}

func (c *Client) Status(ctx context.Context) (domain.Status, error) {
	d, err := c.Details(ctx, false)
	if err != nil {
		return "", err
	}
	return d.Status, nil
}

func (c *Client) Phase(ctx context.Context) (domain.Phase, error) {
	s, err := c.Status(ctx)
	if err != nil {
		return domain.PhaseActive, err
	}
	return c.lifecycle.Classify(s), nil
}

func (c *Client) IsComplete(ctx context.Context) (bool, error) {
	p, err := c.Phase(ctx)
	return p == domain.PhaseSucceeded, err
}

func (c *Client) IsFailed(ctx context.Context) (bool, error) {
	p, err := c.Phase(ctx)
	return p == domain.PhaseFailed, err
}

func (c *Client) IsTerminal(ctx context.Context) (bool, error) {
	p, err := c.Phase(ctx)
	return p.Terminal(), err
}

// Results returns the raw payload of a successfully completed task. It
// checks the known status first and never fetches results otherwise.
func (c *Client) Results(ctx context.Context, forceRefresh bool) (domain.ResultPayload, error) {
	const op = "get_results"

	d, err := c.Details(ctx, forceRefresh)
	if err != nil {
		return domain.ResultPayload{}, err
	}
	if phase := c.lifecycle.Classify(d.Status); phase != domain.PhaseSucceeded {
		return domain.ResultPayload{}, &domain.OpError{
			Op:     op,
			TaskID: c.id,
			Err:    fmt.Errorf("%w: status %s", domain.ErrIncompleteTask, d.Status),
		}
	}
	if d.ErrorInfo != nil && d.ErrorInfo.Message != "" {
		return domain.ResultPayload{}, &domain.OpError{
			Op:     op,
			TaskID: c.id,
			Err:    fmt.Errorf("%w: task reported error: %s", domain.ErrNoResults, d.ErrorInfo.Message),
		}
	}

	if !forceRefresh {
		if p, ok := c.cachedResults(); ok {
			return p, nil
		}
	}

	p, err := c.api.TaskResults(ctx, c.id)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
			return domain.ResultPayload{}, &domain.OpError{
				Op:         op,
				TaskID:     c.id,
				StatusCode: domain.StatusCode(err),
				Err:        fmt.Errorf("%w: %w", domain.ErrNoResults, err),
			}
		}
		return domain.ResultPayload{}, c.fail(op, err)
	}
	if p.Empty() {
		return domain.ResultPayload{}, &domain.OpError{Op: op, TaskID: c.id, Err: domain.ErrNoResults}
	}

	c.mu.Lock()
	c.results = &p
	c.mu.Unlock()
	return p, nil
}

func (c *Client) cachedResults() (domain.ResultPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.results == nil {
		return domain.ResultPayload{}, false
	}
	return *c.results, true
}

// ResultTable materializes the query-flagged entries: a SingleTable when
// exactly one qualifies, a TableSequence otherwise.
func (c *Client) ResultTable(ctx context.Context, forceRefresh bool) (domain.ResultTable, error) {
	p, err := c.Results(ctx, forceRefresh)
	if err != nil {
		return nil, err
	}
	t, err := domain.Materialize(p)
	if err != nil {
		return nil, &domain.OpError{Op: "get_result_table", TaskID: c.id, Err: err}
	}
	return t, nil
}

// Cancel asks the server to cancel the task and returns immediately.
// Observe the effect with Details(ctx, true).
func (c *Client) Cancel(ctx context.Context, reason string, force bool) (domain.CancelAck, error) {
	ack, err := c.api.CancelTask(ctx, c.id, domain.CancelRequest{Reason: reason, Force: force})
	if err != nil {
		return domain.CancelAck{}, c.fail("cancel", err)
	}
	c.logger.Info("cancel requested", slog.Bool("force", force))
	return ack, nil
}

func (c *Client) Logs(ctx context.Context, q domain.LogQuery) (domain.LogPage, error) {
	page, err := c.api.TaskLogs(ctx, c.id, q)
	if err != nil {
		return domain.LogPage{}, c.fail("get_logs", err)
	}
	return page, nil
}

// Invalidate drops both cached snapshots.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.details = nil
	c.results = nil
	c.mu.Unlock()
}

var classified = []error{
	domain.ErrNotFound,
	domain.ErrConflict,
	domain.ErrValidation,
	domain.ErrTransport,
	domain.ErrInvalidTaskID,
}

// fail labels err with op and task id. Errors that do not match a known
// condition are passed through as transport errors.
func (c *Client) fail(op string, err error) error {
	var opErr *domain.OpError
	if errors.As(err, &opErr) {
		return err
	}
	known := false
	for _, s := range classified {
		if errors.Is(err, s) {
			known = true
			break
		}
	}
	if !known {
		err = fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return &domain.OpError{Op: op, TaskID: c.id, Err: err}
}
