package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/you-humble/resinkit/internal/infra/store/artifact"
	"github.com/you-humble/resinkit/internal/infra/store/tracker"
	"github.com/you-humble/resinkit/internal/watcher"
	"github.com/you-humble/resinkit/pkg/domain"
	"github.com/you-humble/resinkit/pkg/task"

	"gopkg.in/yaml.v3"
)

var (
	ErrTrackingDisabled = errors.New("task tracking is not configured (set redis.addr)")
	ErrExportDisabled   = errors.New("result export is not configured")
)

type Transport interface {
	task.Transport
	ListTasks(ctx context.Context, q domain.ListQuery) (domain.TaskPage, error)
	PermanentlyDeleteTask(ctx context.Context, taskID string) error
}

type TaskTracker interface {
	Track(ctx context.Context, r tracker.Record) error
	Tracked(ctx context.Context, id string) (tracker.Record, error)
	Recent(ctx context.Context, limit int) ([]tracker.Record, error)
	Forget(ctx context.Context, id string) error
}

type Watcher interface {
	Watch(ctx context.Context, ids ...string) ([]watcher.Outcome, error)
}

type Exporter interface {
	Export(ctx context.Context, taskID string, rt domain.ResultTable, format artifact.Format) ([]artifact.Artifact, error)
}

type usecase struct {
	api       Transport
	lifecycle domain.Lifecycle
	tracker   TaskTracker
	watcher   Watcher
	exporter  Exporter
	logger    *slog.Logger
}

// New wires the CLI operations. tracker and exporter may be nil.
func New(
	api Transport,
	lifecycle domain.Lifecycle,
	tracker TaskTracker,
	watcher Watcher,
	exporter Exporter,
	logger *slog.Logger,
) *usecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &usecase{
		api:       api,
		lifecycle: lifecycle.WithDefaults(),
		tracker:   tracker,
		watcher:   watcher,
		exporter:  exporter,
		logger:    logger,
	}
}

func (uc *usecase) Lifecycle() domain.Lifecycle { return uc.lifecycle }

func (uc *usecase) taskOptions() []task.Option {
	return []task.Option{task.WithLifecycle(uc.lifecycle), task.WithLogger(uc.logger)}
}

// Task binds a client to an existing id without contacting the server.
func (uc *usecase) Task(id string) (*task.Client, error) {
	return task.New(id, uc.api, uc.taskOptions()...)
}

func (uc *usecase) Submit(ctx context.Context, r domain.SubmitRequest) (*task.Client, error) {
	c, resp, err := task.Submit(ctx, uc.api, r, uc.taskOptions()...)
	if err != nil {
		return nil, err
	}
	uc.track(ctx, resp, r.TaskType, r.Name)
	return c, nil
}

func (uc *usecase) SubmitYAML(ctx context.Context, body string) (*task.Client, error) {
	var head struct {
		TaskType string `yaml:"task_type"`
		Name     string `yaml:"name"`
	}
	if err := yaml.Unmarshal([]byte(body), &head); err != nil {
		return nil, &domain.OpError{Op: "submit_yaml_task", Err: fmt.Errorf("%w: %w", domain.ErrValidation, err)}
	}
	if head.TaskType == "" {
		return nil, &domain.OpError{Op: "submit_yaml_task", Err: fmt.Errorf("%w: empty task_type", domain.ErrValidation)}
	}

	c, resp, err := task.SubmitYAML(ctx, uc.api, body, uc.taskOptions()...)
	if err != nil {
		return nil, err
	}
	uc.track(ctx, resp, head.TaskType, head.Name)
	return c, nil
}

func (uc *usecase) SubmitSQL(ctx context.Context, name, sql string, timeoutSeconds int) (*task.Client, error) {
	t := domain.NewFlinkSQLTask(name, sql, timeoutSeconds)
	c, resp, err := task.SubmitFlinkSQL(ctx, uc.api, name, sql, timeoutSeconds, uc.taskOptions()...)
	if err != nil {
		return nil, err
	}
	uc.track(ctx, resp, t.TaskType, t.Name)
	return c, nil
}

// track is best effort: a tracking failure never fails a submission that
// the server already accepted.
func (uc *usecase) track(ctx context.Context, resp domain.SubmitResponse, taskType, name string) {
	if uc.tracker == nil {
		return
	}
	r := tracker.Record{
		TaskID:   resp.TaskID,
		TaskType: taskType,
		Name:     name,
		Status:   resp.Status,
	}
	if resp.CreatedAt != nil {
		r.SubmittedAt = resp.CreatedAt.Time
	}
	if err := uc.tracker.Track(ctx, r); err != nil {
		uc.logger.Warn("track task",
			slog.String("task_id", resp.TaskID),
			slog.String("error", err.Error()),
		)
	}
}

// Results materializes the task's query results and, when format is set,
// exports them.
func (uc *usecase) Results(ctx context.Context, id string, format artifact.Format) (domain.ResultTable, []artifact.Artifact, error) {
	c, err := uc.Task(id)
	if err != nil {
		return nil, nil, err
	}
	rt, err := c.ResultTable(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	if format == "" {
		return rt, nil, nil
	}
	if uc.exporter == nil {
		return rt, nil, ErrExportDisabled
	}
	arts, err := uc.exporter.Export(ctx, id, rt, format)
	if err != nil {
		return rt, nil, fmt.Errorf("export %s: %w", id, err)
	}
	return rt, arts, nil
}

func (uc *usecase) List(ctx context.Context, q domain.ListQuery) (domain.TaskPage, error) {
	return uc.api.ListTasks(ctx, q)
}

func (uc *usecase) Watch(ctx context.Context, ids ...string) ([]watcher.Outcome, error) {
	return uc.watcher.Watch(ctx, ids...)
}

// Delete removes the task on the server and forgets it locally.
func (uc *usecase) Delete(ctx context.Context, id string) error {
	if err := uc.api.PermanentlyDeleteTask(ctx, id); err != nil {
		return err
	}
	if uc.tracker != nil {
		if err := uc.tracker.Forget(ctx, id); err != nil {
			uc.logger.Warn("forget task", slog.String("task_id", id), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (uc *usecase) Tracked(ctx context.Context, limit int) ([]tracker.Record, error) {
	if uc.tracker == nil {
		return nil, ErrTrackingDisabled
	}
	return uc.tracker.Recent(ctx, limit)
}
