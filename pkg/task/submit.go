package task

import (
	"context"
	"fmt"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"
)

type Submitter interface {
	SubmitTask(ctx context.Context, r domain.SubmitRequest) (domain.SubmitResponse, error)
	SubmitYAMLTask(ctx context.Context, yamlConfig string) (domain.SubmitResponse, error)
}

// Transport is everything needed to submit a task and then follow it.
type Transport interface {
	API
	Submitter
}

// Submit sends a JSON task configuration and returns a Client bound to
// the id the server assigned.
func Submit(ctx context.Context, t Transport, r domain.SubmitRequest, opts ...Option) (*Client, domain.SubmitResponse, error) {
	if r.TaskType == "" {
		return nil, domain.SubmitResponse{}, &domain.OpError{
			Op:  "submit_task",
			Err: fmt.Errorf("%w: empty task_type", domain.ErrValidation),
		}
	}
	resp, err := t.SubmitTask(ctx, r)
	if err != nil {
		return nil, domain.SubmitResponse{}, err
	}
	c, err := New(resp.TaskID, t, opts...)
	if err != nil {
		return nil, resp, fmt.Errorf("submit_task: server returned %w", err)
	}
	return c, resp, nil
}

func SubmitYAML(ctx context.Context, t Transport, yamlConfig string, opts ...Option) (*Client, domain.SubmitResponse, error) {
	resp, err := t.SubmitYAMLTask(ctx, yamlConfig)
	if err != nil {
		return nil, domain.SubmitResponse{}, err
	}
	c, err := New(resp.TaskID, t, opts...)
	if err != nil {
		return nil, resp, fmt.Errorf("submit_yaml_task: server returned %w", err)
	}
	return c, resp, nil
}

// SubmitFlinkSQL renders a flink_sql task as YAML and submits it.
func SubmitFlinkSQL(ctx context.Context, t Transport, name, sql string, timeoutSeconds int, opts ...Option) (*Client, domain.SubmitResponse, error) {
	body, err := domain.NewFlinkSQLTask(name, sql, timeoutSeconds).YAML()
	if err != nil {
		return nil, domain.SubmitResponse{}, &domain.OpError{
			Op:  "submit_yaml_task",
			Err: fmt.Errorf("%w: %w", domain.ErrValidation, err),
		}
	}
	return SubmitYAML(ctx, t, body, opts...)
}

func (c *Client) TaskType(ctx context.Context) (string, error) {
	d, err := c.Details(ctx, false)
	return d.TaskType, err
}

// CreatedAt is zero when the server did not report it.
func (c *Client) CreatedAt(ctx context.Context) (time.Time, error) {
	d, err := c.Details(ctx, false)
	if err != nil || d.CreatedAt == nil {
		return time.Time{}, err
	}
	return d.CreatedAt.Time, nil
}

// FinishedAt is zero until the task reaches a terminal status.
func (c *Client) FinishedAt(ctx context.Context) (time.Time, error) {
	d, err := c.Details(ctx, false)
	if err != nil || d.FinishedAt == nil {
		return time.Time{}, err
	}
	return d.FinishedAt.Time, nil
}

func (c *Client) String() string {
	d, ok := c.cachedDetails()
	if !ok {
		return fmt.Sprintf("Task(%s, status=%s)", c.id, domain.StatusUnknown)
	}
	return fmt.Sprintf("Task(%s, status=%s, type=%s)", c.id, d.Status, d.TaskType)
}
