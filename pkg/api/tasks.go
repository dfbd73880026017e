package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/go-resty/resty/v2"
)

func (c *Client) SubmitTask(ctx context.Context, r domain.SubmitRequest) (domain.SubmitResponse, error) {
	var out domain.SubmitResponse
	_, err := c.request(ctx, "submit_task", "", http.MethodPost, "/tasks", func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").SetBody(r)
	}, &out)
	return out, err
}

func (c *Client) SubmitYAMLTask(ctx context.Context, yamlConfig string) (domain.SubmitResponse, error) {
	var out domain.SubmitResponse
	_, err := c.request(ctx, "submit_yaml_task", "", http.MethodPost, "/tasks/yaml", func(req *resty.Request) {
		req.SetHeader("Content-Type", "text/plain").SetBody(yamlConfig)
	}, &out)
	return out, err
}

func (c *Client) TaskDetails(ctx context.Context, taskID string) (domain.TaskDetails, error) {
	var out domain.TaskDetails
	_, err := c.request(ctx, "get_task_details", taskID, http.MethodGet, "/tasks/{task_id}", nil, &out)
	return out, err
}

func (c *Client) ListTasks(ctx context.Context, q domain.ListQuery) (domain.TaskPage, error) {
	var out domain.TaskPage
	_, err := c.request(ctx, "list_tasks", "", http.MethodGet, "/tasks", func(req *resty.Request) {
		req.SetQueryParamsFromValues(listParams(q))
	}, &out)
	return out, err
}

func (c *Client) CancelTask(ctx context.Context, taskID string, r domain.CancelRequest) (domain.CancelAck, error) {
	var out domain.CancelAck
	_, err := c.request(ctx, "cancel_task", taskID, http.MethodPost, "/tasks/{task_id}/cancel", func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").SetBody(r)
	}, &out)
	if err == nil && out.TaskID == "" {
		out.TaskID = taskID
	}
	return out, err
}

func (c *Client) TaskLogs(ctx context.Context, taskID string, q domain.LogQuery) (domain.LogPage, error) {
	var out domain.LogPage
	_, err := c.request(ctx, "get_task_logs", taskID, http.MethodGet, "/tasks/{task_id}/logs", func(req *resty.Request) {
		level := q.Level
		if level == "" {
			level = "INFO"
		}
		req.SetQueryParam("level", strings.ToUpper(level))
		if q.LogToken != "" {
			req.SetQueryParam("log_token", q.LogToken)
		}
	}, &out)
	return out, err
}

func (c *Client) TaskResults(ctx context.Context, taskID string) (domain.ResultPayload, error) {
	var out domain.ResultPayload
	_, err := c.request(ctx, "get_task_results", taskID, http.MethodGet, "/tasks/{task_id}/results", nil, &out)
	return out, err
}

// PermanentlyDeleteTask removes a finished task and its events.
func (c *Client) PermanentlyDeleteTask(ctx context.Context, taskID string) error {
	_, err := c.request(ctx, "permanently_delete_task", taskID, http.MethodDelete, "/tasks/{task_id}/permanent", nil, nil)
	return err
}

func listParams(q domain.ListQuery) url.Values {
	v := url.Values{}
	if q.TaskType != "" {
		v.Set("task_type", q.TaskType)
	}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.TaskNameContains != "" {
		v.Set("task_name_contains", q.TaskNameContains)
	}
	if len(q.TagsIncludeAny) > 0 {
		v.Set("tags_include_any", strings.Join(q.TagsIncludeAny, ","))
	}
	if !q.CreatedAfter.IsZero() {
		v.Set("created_after", q.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if !q.CreatedBefore.IsZero() {
		v.Set("created_before", q.CreatedBefore.UTC().Format(time.RFC3339))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	v.Set("limit", strconv.Itoa(limit))
	if q.PageToken != "" {
		v.Set("page_token", q.PageToken)
	}

	sortBy, sortOrder := q.SortBy, q.SortOrder
	if sortBy == "" {
		sortBy = "created_at"
	}
	if sortOrder == "" {
		sortOrder = "desc"
	}
	v.Set("sort_by", sortBy)
	v.Set("sort_order", sortOrder)
	return v
}
