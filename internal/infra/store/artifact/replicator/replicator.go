package replicator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go"
)

type Storage interface {
	Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error)
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
}

type Job struct {
	Filename string
	Size     int64
	Hash     string
}

// Result reports the outcome of one job after all attempts.
type Result struct {
	Job      Job
	Attempts uint
	Err      error
}

// Replicator copies local files to remote storage with a fixed pool of
// workers. Stop drains the queue before returning.
type Replicator struct {
	local  Storage
	remote Storage

	queue      chan Job
	workerNum  int
	maxRetries uint
	retryDelay time.Duration
	onResult   func(Result)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*Replicator)

func WithRetryDelay(d time.Duration) Option {
	return func(r *Replicator) { r.retryDelay = d }
}

// WithResultHook is called from worker goroutines once per job.
func WithResultHook(fn func(Result)) Option {
	return func(r *Replicator) { r.onResult = fn }
}

func New(local, remote Storage, queueSize, workerNum, maxRetries int, opts ...Option) *Replicator {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workerNum <= 0 {
		workerNum = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Replicator{
		local:      local,
		remote:     remote,
		queue:      make(chan Job, queueSize),
		workerNum:  workerNum,
		maxRetries: uint(maxRetries),
		retryDelay: 200 * time.Millisecond,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Replicator) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(r.workerNum)
	for i := 0; i < r.workerNum; i++ {
		go r.worker()
	}
}

// Stop refuses new jobs and waits for queued ones. If ctx expires first
// the in-flight uploads are cancelled.
func (r *Replicator) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	cancel := r.cancel
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	case <-done:
	}
	cancel()

	slog.Debug("replicator: stopped")
	return nil
}

// Enqueue never blocks; false means the job was not accepted.
func (r *Replicator) Enqueue(job Job) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false
	}
	select {
	case r.queue <- job:
		return true
	default:
		return false
	}
}

func (r *Replicator) worker() {
	defer r.wg.Done()
	for job := range r.queue {
		r.handleJob(job)
	}
}

func (r *Replicator) handleJob(job Job) {
	r.mu.RLock()
	ctx := r.ctx
	r.mu.RUnlock()

	l := slog.With(slog.String("filename", job.Filename))

	var attempts uint
	err := retry.Do(
		func() error {
			attempts++
			return r.replicateOnce(ctx, job)
		},
		retry.Context(ctx),
		retry.Attempts(r.maxRetries+1),
		retry.Delay(r.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			l.Warn("replication failed, retrying",
				slog.String("error", err.Error()),
				slog.Uint64("attempt", uint64(n+1)),
			)
		}),
	)
	if err != nil {
		l.Error("replication failed",
			slog.String("error", err.Error()),
			slog.Uint64("attempts", uint64(attempts)),
		)
	}
	if r.onResult != nil {
		r.onResult(Result{Job: job, Attempts: attempts, Err: err})
	}
}

func (r *Replicator) replicateOnce(ctx context.Context, job Job) error {
	rc, size, err := r.local.Open(ctx, job.Filename)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer rc.Close()

	if job.Size > 0 {
		size = job.Size
	}

	written, remoteHash, err := r.remote.Save(ctx, rc, job.Filename, size)
	if err != nil {
		return fmt.Errorf("save to remote: %w", err)
	}
	if written <= 0 && size > 0 {
		return fmt.Errorf("remote save wrote zero bytes")
	}
	if job.Hash != "" && remoteHash != "" && job.Hash != remoteHash {
		return fmt.Errorf("hash mismatch: local=%s remote=%s", job.Hash, remoteHash)
	}

	slog.Debug("replicator: file replicated",
		slog.String("filename", job.Filename),
		slog.Int64("size", written),
	)
	return nil
}
