package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGLIntegrity recomputes period-level debit/credit sums and halts
	// periods where the ledger disagrees with posted journal lines.
	TaskGLIntegrity = "gl:integrity"
	// TaskOutboxDrain delivers pending outbox events.
	TaskOutboxDrain = "outbox:drain"
)

// NewGLIntegrityTask constructs the integrity scan task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil)
}

// OutboxDrainPayload bounds one drain pass.
type OutboxDrainPayload struct {
	BatchSize int `json:"batch_size"`
}

// NewOutboxDrainTask constructs an outbox drain task.
func NewOutboxDrainTask(payload OutboxDrainPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxDrain, data), nil
}
