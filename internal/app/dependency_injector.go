package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/you-humble/resinkit/internal/infra/config"
	"github.com/you-humble/resinkit/internal/infra/events"
	"github.com/you-humble/resinkit/internal/infra/store/artifact"
	"github.com/you-humble/resinkit/internal/infra/store/tracker"
	mio "github.com/you-humble/resinkit/internal/libs/minio"
	natsq "github.com/you-humble/resinkit/internal/libs/nats"
	rediscli "github.com/you-humble/resinkit/internal/libs/redis"
	"github.com/you-humble/resinkit/internal/usecase"
	"github.com/you-humble/resinkit/internal/watcher"
	"github.com/you-humble/resinkit/pkg/api"
)

const version = "0.4.0"

type closer func(ctx context.Context) error

// Tracker is the redis task registry as both the CLI and the watcher see it.
type Tracker interface {
	usecase.TaskTracker
	watcher.StatusTracker
}

type localFiles interface {
	artifact.Storage
	Path(filename string) (string, error)
}

type dependencyInjector struct {
	cfgPath string
	cfg     *config.Config
	logger  *slog.Logger

	api *api.Client

	redis   *redis.Client
	tracker Tracker

	natsConn  *nats.Conn
	js        nats.JetStreamContext
	publisher watcher.StatusPublisher

	localStore localFiles
	fileStore  artifact.Storage
	exporter   *artifact.Exporter

	watcher *watcher.Watcher
	usecase Usecase

	closers []closer
}

func newDI(cfgPath string) *dependencyInjector {
	return &dependencyInjector{cfgPath: cfgPath}
}

func (di *dependencyInjector) Config() (*config.Config, error) {
	if di.cfg == nil {
		cfg, err := config.Load(di.cfgPath)
		if err != nil {
			return nil, err
		}
		di.cfg = cfg
	}
	return di.cfg, nil
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		level := slog.LevelInfo
		if di.cfg != nil {
			_ = level.UnmarshalText([]byte(strings.ToUpper(di.cfg.LogLevel)))
		}
		di.logger = slog.New(
			slog.NewTextHandler(
				os.Stderr,
				&slog.HandlerOptions{Level: level},
			),
		)
		slog.SetDefault(di.logger)
	}
	return di.logger
}

func (di *dependencyInjector) API() (*api.Client, error) {
	if di.api == nil {
		cfg, err := di.Config()
		if err != nil {
			return nil, err
		}
		ua := cfg.API.UserAgent
		if ua == "" {
			ua = "resinkit/" + version
		}
		c, err := api.New(api.Config{
			BaseURL:     cfg.API.BaseURL,
			AccessToken: cfg.API.AccessToken,
			SessionID:   cfg.API.SessionID,
			Timeout:     cfg.API.Timeout,
			UserAgent:   ua,
		}, api.WithLogger(di.Logger()))
		if err != nil {
			return nil, err
		}
		di.api = c
	}
	return di.api, nil
}

func (di *dependencyInjector) RedisClient(ctx context.Context) (*redis.Client, error) {
	if di.redis == nil {
		cfg := di.cfg.Redis
		client, err := rediscli.NewClient(ctx, rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			return nil, err
		}
		di.redis = client
		di.closers = append(di.closers, func(context.Context) error { return client.Close() })
		di.Logger().Debug("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis, nil
}

// Tracker is nil when redis is not configured or unreachable.
func (di *dependencyInjector) Tracker(ctx context.Context) Tracker {
	if di.tracker == nil && di.cfg.Redis.Addr != "" {
		rdb, err := di.RedisClient(ctx)
		if err != nil {
			di.Logger().Warn("task tracking disabled", slog.String("error", err.Error()))
			return nil
		}
		di.tracker = tracker.NewRedisTracker(rdb)
	}
	return di.tracker
}

func (di *dependencyInjector) NATSConn() (*nats.Conn, error) {
	if di.natsConn == nil {
		cfg := di.cfg.NATS
		nc, err := natsq.NewConnect(natsq.Config{
			URL:           cfg.URL,
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			return nil, err
		}
		di.natsConn = nc
		di.closers = append(di.closers, func(context.Context) error { return nc.Drain() })
	}
	return di.natsConn, nil
}

func (di *dependencyInjector) JetStream() (nats.JetStreamContext, error) {
	if di.js == nil {
		nc, err := di.NATSConn()
		if err != nil {
			return nil, err
		}
		js, err := natsq.NewJetStream(nc, di.cfg.NATS.Stream, di.cfg.NATS.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		di.js = js
	}
	return di.js, nil
}

// Publisher is nil when NATS is not configured or unreachable.
func (di *dependencyInjector) Publisher() watcher.StatusPublisher {
	if di.publisher == nil && di.cfg.NATS.URL != "" {
		js, err := di.JetStream()
		if err != nil {
			di.Logger().Warn("status events disabled", slog.String("error", err.Error()))
			return nil
		}
		di.publisher = events.NewStatusPublisher(js, di.cfg.NATS.SubjectPrefix)
	}
	return di.publisher
}

func (di *dependencyInjector) FileStore(ctx context.Context) (artifact.Storage, error) {
	if di.fileStore != nil {
		return di.fileStore, nil
	}
	cfg := di.cfg

	local, err := artifact.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		return nil, fmt.Errorf("local store: %w", err)
	}
	di.localStore = local
	di.fileStore = local
	di.Logger().Debug("initialized local file store", slog.String("dir", cfg.Storage.Dir))

	if cfg.MinIO.Endpoint == "" {
		return di.fileStore, nil
	}

	client, err := mio.NewClient(ctx, mio.Config{
		Endpoint:        cfg.MinIO.Endpoint,
		AccessKeyID:     cfg.MinIO.AccessKeyID,
		SecretAccessKey: cfg.MinIO.SecretAccessKey,
		UseSSL:          cfg.MinIO.UseSSL,
		Bucket:          cfg.MinIO.Bucket,
		Retry:           mio.RetryConfig{MaxRetries: 2},
	})
	if err != nil {
		di.Logger().Warn("MinIO unavailable, exports stay local", slog.String("error", err.Error()))
		return di.fileStore, nil
	}
	remote := artifact.NewMinIOStore(client, cfg.MinIO.Bucket, "")

	async := artifact.NewAsyncStore(ctx, local, remote,
		cfg.Storage.QueueCapacity, cfg.Storage.PoolSize, cfg.Storage.UploadRetries)
	di.fileStore = async
	di.closers = append(di.closers, async.Close)
	di.Logger().Debug("using async file store (local + MinIO)",
		slog.String("endpoint", cfg.MinIO.Endpoint),
		slog.String("bucket", cfg.MinIO.Bucket),
		slog.Int("queue_size", cfg.Storage.QueueCapacity),
		slog.Int("worker_num", cfg.Storage.PoolSize),
	)
	return di.fileStore, nil
}

func (di *dependencyInjector) Exporter(ctx context.Context) (*artifact.Exporter, error) {
	if di.exporter == nil {
		store, err := di.FileStore(ctx)
		if err != nil {
			return nil, err
		}
		di.exporter = artifact.NewExporter(store, di.cfg.Storage.PoolSize)
	}
	return di.exporter, nil
}

func (di *dependencyInjector) Watcher(ctx context.Context) (*watcher.Watcher, error) {
	if di.watcher == nil {
		c, err := di.API()
		if err != nil {
			return nil, err
		}
		cfg := di.cfg.Watch
		opts := []watcher.Option{
			watcher.WithLifecycle(di.cfg.Lifecycle),
			watcher.WithLogger(di.Logger()),
		}
		if t := di.Tracker(ctx); t != nil {
			opts = append(opts, watcher.WithTracker(t))
		}
		if p := di.Publisher(); p != nil {
			opts = append(opts, watcher.WithPublisher(p))
		}
		di.watcher = watcher.New(c, watcher.Config{
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			RateLimit:   cfg.RateLimit,
			Burst:       cfg.Burst,
			Retries:     cfg.Retries,
			RetryDelay:  cfg.RetryDelay,
			Concurrency: cfg.Concurrency,
		}, opts...)
	}
	return di.watcher, nil
}

func (di *dependencyInjector) Usecase(ctx context.Context) (Usecase, error) {
	if di.usecase == nil {
		c, err := di.API()
		if err != nil {
			return nil, err
		}
		w, err := di.Watcher(ctx)
		if err != nil {
			return nil, err
		}
		exp, err := di.Exporter(ctx)
		if err != nil {
			return nil, err
		}

		var t usecase.TaskTracker
		if tr := di.Tracker(ctx); tr != nil {
			t = tr
		}
		di.usecase = usecase.New(c, di.cfg.Lifecycle, t, w, exp, di.Logger())
	}
	return di.usecase, nil
}

// Close releases connections in reverse order of creation.
func (di *dependencyInjector) Close(ctx context.Context) error {
	var firstErr error
	for i := len(di.closers) - 1; i >= 0; i-- {
		if err := di.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	di.closers = nil
	return firstErr
}
