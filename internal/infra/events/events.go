package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/resinkit/pkg/domain"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// StatusEvent is published whenever a watched task changes status.
type StatusEvent struct {
	EventID    string        `json:"event_id"`
	TaskID     string        `json:"task_id"`
	Previous   domain.Status `json:"previous,omitempty"`
	Status     domain.Status `json:"status"`
	Phase      string        `json:"phase"`
	ObservedAt time.Time     `json:"observed_at"`
}

type publisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type statusPublisher struct {
	js            publisher
	subjectPrefix string
	now           func() time.Time
}

func NewStatusPublisher(js publisher, subjectPrefix string) *statusPublisher {
	return &statusPublisher{
		js:            js,
		subjectPrefix: subjectPrefix,
		now:           time.Now,
	}
}

func (p *statusPublisher) Subject(taskID string) string {
	return p.subjectPrefix + "." + taskID + ".status"
}

func (p *statusPublisher) PublishStatus(ctx context.Context, taskID string, prev, cur domain.Status, phase domain.Phase) error {
	if taskID == "" {
		return domain.ErrInvalidTaskID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := StatusEvent{
		EventID:    uuid.NewString(),
		TaskID:     taskID,
		Previous:   prev,
		Status:     cur,
		Phase:      phase.String(),
		ObservedAt: p.now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal status event %s: %w", taskID, err)
	}

	msg := &nats.Msg{
		Subject: p.Subject(taskID),
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(nats.MsgIdHdr, ev.EventID)

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish status %s: %w", taskID, err)
	}

	slog.Debug(
		"status event published",
		slog.String("task_id", taskID),
		slog.String("status", cur.String()),
		slog.String("subject", msg.Subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)
	return nil
}
