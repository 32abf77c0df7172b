package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/harbor-fin/harbor/internal/outbox"
)

const defaultDrainBatch = 100

// EventSink delivers one drained event to its destination. Delivery is
// at-least-once; sinks must tolerate replays.
type EventSink interface {
	Deliver(ctx context.Context, event outbox.Event) error
}

// LogSink writes events to the application log. It stands in until a real
// transport is attached downstream.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements EventSink.
func (s LogSink) Deliver(_ context.Context, event outbox.Event) error {
	if s.Logger != nil {
		s.Logger.Info("outbox event dispatched",
			slog.String("event_id", event.ID.String()),
			slog.String("topic", event.Topic),
			slog.String("payload", string(event.Payload)))
	}
	return nil
}

// EventSource hands out pending events and settles delivered ones.
// *outbox.Repository is the production implementation.
type EventSource interface {
	Pending(ctx context.Context, limit int) ([]outbox.Event, error)
	MarkDispatched(ctx context.Context, ids []uuid.UUID) error
}

// OutboxDrainer delivers pending outbox events in creation order and stamps
// them dispatched.
type OutboxDrainer struct {
	repo   EventSource
	sink   EventSink
	logger *slog.Logger
}

// NewOutboxDrainer constructs the drainer.
func NewOutboxDrainer(repo EventSource, sink EventSink, logger *slog.Logger) *OutboxDrainer {
	return &OutboxDrainer{repo: repo, sink: sink, logger: logger}
}

// Drain runs one pass. Events that fail delivery stay pending; the next pass
// retries them.
func (d *OutboxDrainer) Drain(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultDrainBatch
	}
	events, err := d.repo.Pending(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	delivered := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		if err := d.sink.Deliver(ctx, event); err != nil {
			if d.logger != nil {
				d.logger.Warn("outbox delivery failed",
					slog.String("event_id", event.ID.String()),
					slog.String("topic", event.Topic),
					slog.Any("error", err))
			}
			break
		}
		delivered = append(delivered, event.ID)
	}
	if err := d.repo.MarkDispatched(ctx, delivered); err != nil {
		return len(delivered), err
	}
	return len(delivered), nil
}

// TaskHandler adapts the drainer to an Asynq handler.
func (d *OutboxDrainer) TaskHandler() TaskHandler {
	return TaskHandler{
		Type: TaskOutboxDrain,
		Handler: func(ctx context.Context, t *asynq.Task) error {
			var payload OutboxDrainPayload
			if len(t.Payload()) > 0 {
				if err := json.Unmarshal(t.Payload(), &payload); err != nil {
					return asynq.SkipRetry
				}
			}
			_, err := d.Drain(ctx, payload.BatchSize)
			return err
		},
	}
}
