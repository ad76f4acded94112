package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-hr/internal/jobs"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
)

// GrantSweeper runs one expiration cycle.
type GrantSweeper interface {
	SweepOnce(ctx context.Context) (rbac.SweepReport, error)
}

// GrantSweepJob runs the expiration sweeper from the queue.
type GrantSweepJob struct {
	Sweeper GrantSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGrantSweepJob wires dependencies for the sweep handler.
func NewGrantSweepJob(sweeper GrantSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *GrantSweepJob {
	return &GrantSweepJob{Sweeper: sweeper, Logger: logger, Metrics: metrics}
}

// Handle processes grant sweep tasks.
func (j *GrantSweepJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sweeper == nil {
		return errors.New("grant sweep: handler not configured")
	}
	var payload GrantSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("grant sweep: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Trigger == "" {
		payload.Trigger = TriggerScheduled
	}

	tracker := j.Metrics.Track(TaskGrantSweep)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	report, err := j.Sweeper.SweepOnce(context.WithoutCancel(ctx))
	j.Metrics.AddExpiredGrants(report.Expired)
	if err != nil {
		logger.Error("grant sweep", slog.Int("expired", report.Expired), slog.Any("error", err))
		return err
	}
	if report.Skipped {
		j.Metrics.IncSkippedSweeps()
		logger.Info("grant sweep skipped, lock held elsewhere")
		return nil
	}
	logger.Info("grant sweep completed", slog.Int("scanned", report.Scanned), slog.Int("expired", report.Expired))
	return nil
}

func (j *GrantSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
