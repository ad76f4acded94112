package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGrantSweep expires role grants whose expiry has passed.
	TaskGrantSweep = "rbac:grant_sweep"
)

// Sweep triggers recorded in task payloads.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// GrantSweepPayload describes a sweep request.
type GrantSweepPayload struct {
	Trigger string `json:"trigger"`
}

// NewGrantSweepTask constructs an Asynq task.
func NewGrantSweepTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = TriggerScheduled
	}
	data, err := json.Marshal(GrantSweepPayload{Trigger: trigger})
	if err != nil {
		return nil, fmt.Errorf("marshal grant sweep payload: %w", err)
	}
	return asynq.NewTask(TaskGrantSweep, data), nil
}
