// Package api is the REST transport for the ResinKit agent API. It builds
// authenticated requests and classifies HTTP failures into the sentinel
// errors of package domain; it never retries.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	basePath        = "/api/v1/agent"
	sessionCookie   = "resink_session"
	requestIDHeader = "X-Request-ID"
	defaultTimeout  = 30 * time.Second
)

type Config struct {
	BaseURL     string
	AccessToken string
	SessionID   string
	Timeout     time.Duration
	UserAgent   string
}

type Client struct {
	rc     *resty.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient swaps the underlying http.Client (tests, proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			if hc.Transport != nil {
				c.rc.SetTransport(hc.Transport)
			}
			if hc.Timeout > 0 {
				c.rc.SetTimeout(hc.Timeout)
			}
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("api: empty base url")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	rc := resty.New().
		SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}
	if cfg.AccessToken != "" {
		rc.SetHeader("Authorization", cfg.AccessToken)
	}
	if cfg.SessionID != "" {
		rc.SetCookie(&http.Cookie{Name: sessionCookie, Value: cfg.SessionID})
	}
	rc.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		if r.Header.Get(requestIDHeader) == "" {
			r.SetHeader(requestIDHeader, uuid.NewString())
		}
		return nil
	})

	c := &Client{rc: rc, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

// request performs one call. op and taskID only label errors and logs.
func (c *Client) request(
	ctx context.Context,
	op, taskID, method, path string,
	callback func(*resty.Request),
	out any,
) (*resty.Response, error) {
	req := c.rc.R().SetContext(ctx)
	if taskID != "" {
		req.SetPathParam("task_id", taskID)
	}
	if callback != nil {
		callback(req)
	}

	start := time.Now()
	resp, err := req.Execute(method, basePath+path)
	if err != nil {
		c.logger.Debug("api request failed",
			slog.String("op", op),
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		return resp, &domain.OpError{
			Op:     op,
			TaskID: taskID,
			Err:    fmt.Errorf("%w: %w", domain.ErrTransport, err),
		}
	}

	c.logger.Debug("api request",
		slog.String("op", op),
		slog.String("task_id", taskID),
		slog.String("method", method),
		slog.String("url", resp.Request.URL),
		slog.Int("status", resp.StatusCode()),
		slog.Duration("duration", time.Since(start)),
	)

	if err := classify(resp); err != nil {
		return resp, &domain.OpError{
			Op:         op,
			TaskID:     taskID,
			StatusCode: resp.StatusCode(),
			Err:        err,
		}
	}

	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return resp, &domain.OpError{
				Op:         op,
				TaskID:     taskID,
				StatusCode: resp.StatusCode(),
				Err:        fmt.Errorf("%w: decode response: %w", domain.ErrTransport, err),
			}
		}
	}
	return resp, nil
}

func classify(resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}

	detail := errorDetail(resp.Body())
	var sentinel error
	switch code {
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusConflict:
		sentinel = domain.ErrConflict
	case http.StatusUnprocessableEntity:
		sentinel = domain.ErrValidation
	default:
		sentinel = domain.ErrTransport
	}
	if detail == "" {
		detail = http.StatusText(code)
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

func errorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return truncate(strings.TrimSpace(string(body)), 512)
	}
	if len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil {
			return s
		}
		return truncate(string(eb.Detail), 512)
	}
	if eb.Message != "" {
		return eb.Message
	}
	if eb.Error != "" {
		return eb.Error
	}
	return truncate(strings.TrimSpace(string(body)), 512)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// IsNotFound is a convenience for callers that only hold an api error.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
