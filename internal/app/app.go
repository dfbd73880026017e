// Package app wires configuration, the agent API client and the optional
// redis, NATS and MinIO backends into the operations the CLI runs.
package app

import (
	"context"
	"io"

	"github.com/you-humble/resinkit/internal/infra/store/artifact"
	"github.com/you-humble/resinkit/internal/infra/store/tracker"
	"github.com/you-humble/resinkit/internal/watcher"
	"github.com/you-humble/resinkit/pkg/api"
	"github.com/you-humble/resinkit/pkg/domain"
	"github.com/you-humble/resinkit/pkg/task"
)

type Usecase interface {
	Lifecycle() domain.Lifecycle
	Task(id string) (*task.Client, error)
	Submit(ctx context.Context, r domain.SubmitRequest) (*task.Client, error)
	SubmitYAML(ctx context.Context, body string) (*task.Client, error)
	SubmitSQL(ctx context.Context, name, sql string, timeoutSeconds int) (*task.Client, error)
	Results(ctx context.Context, id string, format artifact.Format) (domain.ResultTable, []artifact.Artifact, error)
	List(ctx context.Context, q domain.ListQuery) (domain.TaskPage, error)
	Watch(ctx context.Context, ids ...string) ([]watcher.Outcome, error)
	Delete(ctx context.Context, id string) error
	Tracked(ctx context.Context, limit int) ([]tracker.Record, error)
}

type App struct {
	di *dependencyInjector
}

// New loads the configuration at cfgPath. An empty path means environment
// variables only.
func New(cfgPath string) (*App, error) {
	di := newDI(cfgPath)
	if _, err := di.Config(); err != nil {
		return nil, err
	}
	di.Logger()
	return &App{di: di}, nil
}

func (a *App) Usecase(ctx context.Context) (Usecase, error) {
	return a.di.Usecase(ctx)
}

// API exposes the raw client for calls without task semantics, such as
// variables.
func (a *App) API() (*api.Client, error) {
	return a.di.API()
}

// OpenArtifact reads an exported file, falling back to MinIO when it is not
// on local disk.
func (a *App) OpenArtifact(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	store, err := a.di.FileStore(ctx)
	if err != nil {
		return nil, 0, err
	}
	return store.Open(ctx, filename)
}

// LocalPath maps an artifact name to where it was written on disk.
func (a *App) LocalPath(filename string) string {
	if a.di.localStore == nil {
		return filename
	}
	p, err := a.di.localStore.Path(filename)
	if err != nil {
		return filename
	}
	return p
}

// Close drains pending uploads and closes connections.
func (a *App) Close(ctx context.Context) error {
	return a.di.Close(ctx)
}
