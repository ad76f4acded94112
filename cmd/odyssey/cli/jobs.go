// Package cli holds operator subcommands of the odyssey binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-hr/jobs"
)

// ErrUsage is returned for unknown or missing subcommands.
var ErrUsage = errors.New("usage: odyssey jobs <sweep|inspect|scheduled>")

type sweepEnqueuer interface {
	EnqueueGrantSweep(ctx context.Context, trigger string) (*asynq.TaskInfo, error)
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for the sweep queue.
type JobsCLI struct {
	client    sweepEnqueuer
	inspector queueInspector
	closers   []io.Closer
}

// NewJobsCLI connects the CLI helpers to the queue's Redis.
func NewJobsCLI(opt asynq.RedisClientOpt) *JobsCLI {
	client := jobs.NewClient(opt)
	inspector := asynq.NewInspector(opt)
	return &JobsCLI{client: client, inspector: inspector, closers: []io.Closer{client, inspector}}
}

// RunJobs executes one jobs subcommand and releases its connections.
func RunJobs(ctx context.Context, opt asynq.RedisClientOpt, args []string, out io.Writer) (err error) {
	c := NewJobsCLI(opt)
	defer func() {
		err = errors.Join(err, c.Close())
	}()
	return c.Run(ctx, args, out)
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closer := range c.closers {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// Run dispatches args[0] and writes a JSON result to out.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	var result any
	var err error
	switch args[0] {
	case "sweep":
		result, err = c.TriggerSweep(ctx)
	case "inspect":
		result, err = c.InspectQueue(ctx)
	case "scheduled":
		result, err = c.ListScheduled(ctx, 10)
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// SweepResult reports a manual sweep trigger.
type SweepResult struct {
	Enqueued bool   `json:"enqueued"`
	TaskID   string `json:"task_id,omitempty"`
	Queue    string `json:"queue"`
}

// TriggerSweep enqueues a manual grant sweep. A sweep already waiting in the
// queue absorbs the trigger.
func (c *JobsCLI) TriggerSweep(ctx context.Context) (SweepResult, error) {
	if c == nil || c.client == nil {
		return SweepResult{}, errors.New("jobs cli: client not configured")
	}
	info, err := c.client.EnqueueGrantSweep(ctx, jobs.TriggerManual)
	if err != nil {
		return SweepResult{}, fmt.Errorf("jobs cli: enqueue sweep: %w", err)
	}
	res := SweepResult{Queue: jobs.QueueDefault}
	if info != nil {
		res.Enqueued = true
		res.TaskID = info.ID
		res.Queue = info.Queue
	}
	return res, nil
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// ScheduledTask is a summary of one scheduled task.
type ScheduledTask struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ListScheduled returns up to size scheduled tasks.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]ScheduledTask, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	infos, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	out := make([]ScheduledTask, 0, len(infos))
	for _, info := range infos {
		out = append(out, ScheduledTask{ID: info.ID, Type: info.Type})
	}
	return out, nil
}
