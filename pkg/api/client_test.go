package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  map[string]string
	header http.Header
	cookie string
	body   string
}

type agentServer struct {
	*httptest.Server
	mu   sync.Mutex
	last recorded
}

func newAgentServer(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) *agentServer {
	t.Helper()
	s := &agentServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec := recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  map[string]string{},
			header: r.Header.Clone(),
			body:   string(body),
		}
		for k := range r.URL.Query() {
			rec.query[k] = r.URL.Query().Get(k)
		}
		if c, err := r.Cookie(sessionCookie); err == nil {
			rec.cookie = c.Value
		}
		s.mu.Lock()
		s.last = rec
		s.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *agentServer) lastRequest() recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: url + "/", AccessToken: "tok", SessionID: "sess", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "  "})
	assert.Error(t, err)
}

func TestTaskDetailsRequest(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"task_id":   "flink_sql_1",
			"task_type": "flink_sql",
			"status":    "RUNNING",
		})
	})
	c := newTestClient(t, srv.URL)

	d, err := c.TaskDetails(context.Background(), "flink_sql_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, d.Status)

	req := srv.lastRequest()
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/api/v1/agent/tasks/flink_sql_1", req.path)
	assert.Equal(t, "tok", req.header.Get("Authorization"))
	assert.Equal(t, "sess", req.cookie)
	assert.NotEmpty(t, req.header.Get(requestIDHeader))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		body      string
		sentinel  error
		retryable bool
		detail    string
	}{
		{"not found", 404, `{"detail":"Task x not found"}`, domain.ErrNotFound, false, "Task x not found"},
		{"conflict", 409, `{"message":"already completed"}`, domain.ErrConflict, false, "already completed"},
		{"validation", 422, `{"detail":[{"loc":["body"],"msg":"bad"}]}`, domain.ErrValidation, false, "bad"},
		{"server error", 500, `oops`, domain.ErrTransport, true, "oops"},
		{"bad gateway no body", 502, ``, domain.ErrTransport, true, "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = io.WriteString(w, tt.body)
			})
			c := newTestClient(t, srv.URL)

			_, err := c.TaskDetails(context.Background(), "x")
			require.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
			assert.Equal(t, tt.code, domain.StatusCode(err))
			assert.Contains(t, err.Error(), tt.detail)
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.TaskResults(context.Background(), "t")
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.True(t, domain.IsRetryable(err))
}

func TestMalformedBodyIsTransportError(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"task_id":`)
	})
	c := newTestClient(t, srv.URL)

	_, err := c.TaskDetails(context.Background(), "t")
	require.ErrorIs(t, err, domain.ErrTransport)
}

func TestSubmitTask(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]any{"task_id": "flink_sql_2", "status": "PENDING"})
	})
	c := newTestClient(t, srv.URL)

	resp, err := c.SubmitTask(context.Background(), domain.SubmitRequest{
		TaskType: "flink_sql",
		Configs:  map[string]any{"job": map[string]any{"sql": "SELECT 1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "flink_sql_2", resp.TaskID)

	req := srv.lastRequest()
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/v1/agent/tasks", req.path)
	assert.JSONEq(t, `{"task_type":"flink_sql","job":{"sql":"SELECT 1"}}`, req.body)
}

func TestSubmitYAMLTask(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, map[string]any{"task_id": "flink_sql_3", "status": "PENDING"})
	})
	c := newTestClient(t, srv.URL)

	body := "task_type: flink_sql\nname: x\n"
	_, err := c.SubmitYAMLTask(context.Background(), body)
	require.NoError(t, err)

	req := srv.lastRequest()
	assert.Equal(t, "/api/v1/agent/tasks/yaml", req.path)
	assert.Equal(t, "text/plain", req.header.Get("Content-Type"))
	assert.Equal(t, body, req.body)
}

func TestListTasksDefaults(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"tasks":           []map[string]any{{"task_id": "a", "status": "COMPLETED"}},
			"total_count":     7,
			"next_page_token": "p2",
		})
	})
	c := newTestClient(t, srv.URL)

	page, err := c.ListTasks(context.Background(), domain.ListQuery{
		Status:         domain.StatusCompleted,
		TagsIncludeAny: []string{"a", "b"},
		CreatedAfter:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 7, page.TotalCount)
	assert.Equal(t, "p2", page.NextPageToken)
	require.Len(t, page.Tasks, 1)

	q := srv.lastRequest().query
	assert.Equal(t, "20", q["limit"])
	assert.Equal(t, "created_at", q["sort_by"])
	assert.Equal(t, "desc", q["sort_order"])
	assert.Equal(t, "COMPLETED", q["status"])
	assert.Equal(t, "a,b", q["tags_include_any"])
	assert.Equal(t, "2025-01-02T03:04:05Z", q["created_after"])
	_, hasType := q["task_type"]
	assert.False(t, hasType)
}

func TestCancelTask(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "CANCELLING", "message": "ok"})
	})
	c := newTestClient(t, srv.URL)

	ack, err := c.CancelTask(context.Background(), "t9", domain.CancelRequest{Reason: "stop", Force: true})
	require.NoError(t, err)
	assert.Equal(t, "t9", ack.TaskID)
	assert.Equal(t, domain.StatusCancelling, ack.Status)

	req := srv.lastRequest()
	assert.Equal(t, "/api/v1/agent/tasks/t9/cancel", req.path)
	assert.JSONEq(t, `{"reason":"stop","force":true}`, req.body)
}

func TestTaskLogs(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"log_entries":    []map[string]any{{"timestamp": 1, "level": "WARN", "message": "slow"}},
			"next_log_token": "n",
		})
	})
	c := newTestClient(t, srv.URL)

	page, err := c.TaskLogs(context.Background(), "t", domain.LogQuery{Level: "warn", LogToken: "prev"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "n", page.NextLogToken)

	q := srv.lastRequest().query
	assert.Equal(t, "WARN", q["level"])
	assert.Equal(t, "prev", q["log_token"])
}

func TestTaskResults(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{
			"task_id": "t",
			"result_type": "flink_sql",
			"data": {"results": [[{"result":"OK"}], [{"id":1},{"id":2}]], "is_query": [false, true]}
		}`)
	})
	c := newTestClient(t, srv.URL)

	p, err := c.TaskResults(context.Background(), "t")
	require.NoError(t, err)
	require.NotNil(t, p.Data)
	assert.Equal(t, []bool{false, true}, p.Data.IsQuery)

	rt, err := domain.Materialize(p)
	require.NoError(t, err)
	assert.Len(t, rt.Tables(), 1)
	assert.Equal(t, "/api/v1/agent/tasks/t/results", srv.lastRequest().path)
}

func TestPermanentlyDeleteTask(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, srv.URL)

	require.NoError(t, c.PermanentlyDeleteTask(context.Background(), "t"))
	req := srv.lastRequest()
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "/api/v1/agent/tasks/t/permanent", req.path)
}

func TestVariables(t *testing.T) {
	srv := newAgentServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/agent/variables":
			writeJSON(w, http.StatusOK, []map[string]any{{"name": "A"}, {"name": "B"}})
		case r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"name": "A", "value": "1"})
		case r.Method == http.MethodPost:
			writeJSON(w, http.StatusCreated, map[string]any{"name": "C"})
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	vars, err := c.ListVariables(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 2)

	v, err := c.Variable(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "1", v.Value)
	assert.Equal(t, "/api/v1/agent/variables/A", srv.lastRequest().path)

	_, err = c.CreateVariable(ctx, domain.Variable{Name: "C", Value: "3"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"C","value":"3"}`, srv.lastRequest().body)

	require.NoError(t, c.DeleteVariable(ctx, "C"))
	assert.Equal(t, http.MethodDelete, srv.lastRequest().method)
}
