package artifact

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/you-humble/resinkit/internal/infra/store/artifact/replicator"
)

type Storage interface {
	Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error)
	Open(ctx context.Context, filename string) (io.ReadCloser, int64, error)
}

// asyncStore saves locally and replicates to remote in the background.
// Reads prefer the local copy.
type asyncStore struct {
	local      Storage
	remote     Storage
	replicator *replicator.Replicator
}

func NewAsyncStore(
	ctx context.Context,
	local, remote Storage,
	queueSize, workerNum, maxRetries int,
	opts ...replicator.Option,
) *asyncStore {
	repl := replicator.New(local, remote, queueSize, workerNum, maxRetries, opts...)
	repl.Start(ctx)

	return &asyncStore{
		local:      local,
		remote:     remote,
		replicator: repl,
	}
}

// Close waits for pending uploads.
func (s *asyncStore) Close(ctx context.Context) error {
	return s.replicator.Stop(ctx)
}

func (s *asyncStore) Save(ctx context.Context, reader io.Reader, filename string, size int64) (int64, string, error) {
	written, hash, err := s.local.Save(ctx, reader, filename, size)
	if err != nil {
		return 0, "", err
	}

	ok := s.replicator.Enqueue(replicator.Job{
		Filename: filename,
		Size:     written,
		Hash:     hash,
	})
	if !ok {
		slog.Error("replication queue full, export saved only locally",
			slog.String("filename", filename),
			slog.Int64("size", written),
		)
	}
	return written, hash, nil
}

func (s *asyncStore) Open(ctx context.Context, filename string) (io.ReadCloser, int64, error) {
	rc, size, err := s.local.Open(ctx, filename)
	if err == nil {
		return rc, size, nil
	}
	if !errors.Is(err, ErrFileNotFound) {
		return nil, 0, err
	}
	return s.remote.Open(ctx, filename)
}
