package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-hr/internal/jobs"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
)

type stubSweeper struct {
	report rbac.SweepReport
	err    error
	calls  int
	ctxErr error
}

func (s *stubSweeper) SweepOnce(ctx context.Context) (rbac.SweepReport, error) {
	s.calls++
	s.ctxErr = ctx.Err()
	return s.report, s.err
}

func TestNewGrantSweepTask(t *testing.T) {
	task, err := NewGrantSweepTask("")
	require.NoError(t, err)
	require.Equal(t, TaskGrantSweep, task.Type())
	var payload GrantSweepPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, TriggerScheduled, payload.Trigger)
}

func TestGrantSweepJobHandle(t *testing.T) {
	sweeper := &stubSweeper{report: rbac.SweepReport{Scanned: 3, Expired: 3}}
	job := NewGrantSweepJob(sweeper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewGrantSweepTask(TriggerManual)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, job.Handle(ctx, task))
	require.Equal(t, 1, sweeper.calls)
	require.NoError(t, sweeper.ctxErr)
}

func TestGrantSweepJobSurfacesFailure(t *testing.T) {
	boom := errors.New("audit store down")
	job := NewGrantSweepJob(&stubSweeper{err: boom}, nil, nil)
	task, err := NewGrantSweepTask(TriggerScheduled)
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestGrantSweepJobSkipsRetryOnBadPayload(t *testing.T) {
	sweeper := &stubSweeper{}
	job := NewGrantSweepJob(sweeper, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskGrantSweep, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, sweeper.calls)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2}}, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Pending)
	require.True(t, body.Available)

	r = chi.NewRouter()
	NewHandler(stubInspector{err: errors.New("dial tcp: refused")}, nil).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
