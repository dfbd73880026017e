package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/redis/go-redis/v9"
)

var ErrNotTracked = errors.New("task not tracked")

// Record is the locally remembered view of a submitted task.
type Record struct {
	TaskID      string
	TaskType    string
	Name        string
	Status      domain.Status
	SubmittedAt time.Time
	UpdatedAt   time.Time
	FinishedAt  time.Time
}

type redisTracker struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewRedisTracker(rdb redis.Cmdable) *redisTracker {
	return &redisTracker{rdb: rdb, now: time.Now}
}

func (s *redisTracker) Track(ctx context.Context, r Record) error {
	if r.TaskID == "" {
		return domain.ErrInvalidTaskID
	}
	now := s.now()
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = now
	}
	if r.Status == "" {
		r.Status = domain.StatusPending
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(r.TaskID), map[string]any{
		"task_type":    r.TaskType,
		"name":         r.Name,
		"status":       string(r.Status),
		"submitted_at": r.SubmittedAt.UnixNano(),
		"updated_at":   now.UnixNano(),
		"finished_at":  unixNano(r.FinishedAt),
	})
	pipe.ZAdd(ctx, tasksBySubmittedKey(), redis.Z{
		Score:  float64(r.SubmittedAt.Unix()),
		Member: r.TaskID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline Track %s: %w", r.TaskID, err)
	}
	return nil
}

// UpdateStatus records status on a tracked task; terminal phases also
// stamp finished_at. Untracked ids are tracked on the fly.
func (s *redisTracker) UpdateStatus(ctx context.Context, id string, status domain.Status, phase domain.Phase) error {
	exists, err := s.rdb.Exists(ctx, taskKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redis exists %s: %w", id, err)
	}
	if exists == 0 {
		r := Record{TaskID: id, Status: status}
		if phase.Terminal() {
			r.FinishedAt = s.now()
		}
		return s.Track(ctx, r)
	}

	now := s.now().UnixNano()
	fields := map[string]any{
		"status":     string(status),
		"updated_at": now,
	}
	if phase.Terminal() {
		fields["finished_at"] = now
	}
	if err := s.rdb.HSet(ctx, taskKey(id), fields).Err(); err != nil {
		return fmt.Errorf("redis UpdateStatus %s: %w", id, err)
	}
	return nil
}

func (s *redisTracker) Tracked(ctx context.Context, id string) (Record, error) {
	res, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("redis HGetAll %s: %w", id, err)
	}
	if len(res) == 0 {
		return Record{}, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	return recordFromHash(id, res), nil
}

// Recent returns up to limit tracked tasks, newest submission first.
func (s *redisTracker) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := s.rdb.ZRevRange(ctx, tasksBySubmittedKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZRevRange: %w", err)
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		r, err := s.Tracked(ctx, id)
		if errors.Is(err, ErrNotTracked) {
			_ = s.rdb.ZRem(ctx, tasksBySubmittedKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *redisTracker) Forget(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, taskKey(id))
	pipe.ZRem(ctx, tasksBySubmittedKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline Forget %s: %w", id, err)
	}
	return nil
}

func recordFromHash(id string, res map[string]string) Record {
	return Record{
		TaskID:      id,
		TaskType:    res["task_type"],
		Name:        res["name"],
		Status:      domain.Status(res["status"]),
		SubmittedAt: parseUnixNano(res["submitted_at"]),
		UpdatedAt:   parseUnixNano(res["updated_at"]),
		FinishedAt:  parseUnixNano(res["finished_at"]),
	}
}

func parseUnixNano(v string) time.Time {
	if v == "" || v == "0" {
		return time.Time{}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func taskKey(id string) string {
	return "rsk:task:" + id
}

func tasksBySubmittedKey() string {
	return "rsk:tasks:by_submitted"
}
