package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type TaskDetails struct {
	TaskID      string `json:"task_id"`
	TaskType    string `json:"task_type,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status"`

	CreatedAt  *Timestamp `json:"created_at,omitempty"`
	UpdatedAt  *Timestamp `json:"updated_at,omitempty"`
	StartedAt  *Timestamp `json:"started_at,omitempty"`
	FinishedAt *Timestamp `json:"finished_at,omitempty"`

	// display only
	SubmittedConfigs json.RawMessage `json:"submitted_configs,omitempty"`
	ExecutionDetails json.RawMessage `json:"execution_details,omitempty"`
	ResultSummary    json.RawMessage `json:"result_summary,omitempty"`

	ErrorInfo *ErrorInfo `json:"error_info,omitempty"`
}

type ErrorInfo struct {
	Message string          `json:"message"`
	Details json.RawMessage `json:"details,omitempty"`
}

// SubmitRequest is the JSON task configuration. Configs holds task-type
// specific fields (job, sources, ...) and is merged into the top level.
type SubmitRequest struct {
	TaskType       string         `json:"task_type"`
	Name           string         `json:"name,omitempty"`
	Description    string         `json:"description,omitempty"`
	TimeoutSeconds int            `json:"task_timeout_seconds,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	Configs        map[string]any `json:"-"`
}

func (r SubmitRequest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Configs)+5)
	for k, v := range r.Configs {
		out[k] = v
	}
	out["task_type"] = r.TaskType
	if r.Name != "" {
		out["name"] = r.Name
	}
	if r.Description != "" {
		out["description"] = r.Description
	}
	if r.TimeoutSeconds > 0 {
		out["task_timeout_seconds"] = r.TimeoutSeconds
	}
	if len(r.Tags) > 0 {
		out["tags"] = r.Tags
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a task configuration file into the common fields and
// the task-type specific remainder.
func (r *SubmitRequest) UnmarshalJSON(data []byte) error {
	type common SubmitRequest
	var c common
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	var rest map[string]any
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	for _, k := range []string{"task_type", "name", "description", "task_timeout_seconds", "tags"} {
		delete(rest, k)
	}
	*r = SubmitRequest(c)
	if len(rest) > 0 {
		r.Configs = rest
	}
	return nil
}

type SubmitResponse struct {
	TaskID    string     `json:"task_id"`
	Status    Status     `json:"status"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

type ListQuery struct {
	TaskType         string
	Status           Status
	TaskNameContains string
	TagsIncludeAny   []string
	CreatedAfter     time.Time
	CreatedBefore    time.Time
	Limit            int
	PageToken        string
	SortBy           string
	SortOrder        string
}

type TaskPage struct {
	Tasks         []TaskDetails `json:"tasks"`
	TotalCount    int           `json:"total_count"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
	Force  bool   `json:"force"`
}

type CancelAck struct {
	TaskID  string `json:"task_id,omitempty"`
	Status  Status `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

type LogQuery struct {
	Level    string
	LogToken string
}

type LogEntry struct {
	Timestamp LogTimestamp `json:"timestamp"`
	Level     string       `json:"level"`
	Message   string       `json:"message"`
}

type LogPage struct {
	Entries      []LogEntry `json:"log_entries"`
	NextLogToken string     `json:"next_log_token,omitempty"`
}

type Variable struct {
	Name        string     `json:"name"`
	Value       string     `json:"value,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO 8601 form the
// agent API emits for naive datetimes (treated as UTC).
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// LogTimestamp keeps the server value as text; the API sends either epoch
// seconds or an ISO string.
type LogTimestamp string

func (t *LogTimestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = LogTimestamp(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("log timestamp: %w", err)
	}
	*t = LogTimestamp(b)
	return nil
}

// Time converts the value when it is parseable; ok is false otherwise.
func (t LogTimestamp) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(t))
	if s == "" {
		return time.Time{}, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC(), true
	}
	var ts Timestamp
	if err := ts.UnmarshalJSON([]byte(strconv.Quote(s))); err != nil || ts.IsZero() {
		return time.Time{}, false
	}
	return ts.Time, true
}
