package perf

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/odyssey-erp/odyssey-hr/internal/app"
	"github.com/odyssey-erp/odyssey-hr/internal/identitystore"
	jobmetrics "github.com/odyssey-erp/odyssey-hr/internal/jobs"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
	"github.com/odyssey-erp/odyssey-hr/jobs"
)

func seedStore(t testing.TB, identities int, expiredPerIdentity bool) (*identitystore.Memory, *app.Components) {
	t.Helper()
	store := identitystore.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	for i := 0; i < identities; i++ {
		identifier := fmt.Sprintf("user%04d.perf", i)
		if err := store.InsertIdentity(ctx, users.Identity{
			ID:         fmt.Sprintf("id-%d", i),
			Identifier: identifier,
			Active:     true,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			t.Fatalf("insert identity: %v", err)
		}
		grant := rbac.Grant{
			ID:         fmt.Sprintf("grant-%d", i),
			Identifier: identifier,
			Role:       rbac.RoleEmployee,
			GrantedAt:  now.Add(-2 * time.Hour),
			GrantedBy:  "seed",
			State:      rbac.GrantActive,
		}
		if expiredPerIdentity {
			grant.ExpiresAt = &past
		}
		if err := store.InsertGrant(ctx, grant); err != nil {
			t.Fatalf("insert grant: %v", err)
		}
	}
	components, err := app.NewComponents(&app.Config{SweepBatchSize: 100, SweepConcurrency: 8}, app.ComponentDeps{Store: store})
	if err != nil {
		t.Fatalf("wire components: %v", err)
	}
	return store, components
}

func TestCheckLatencyBudget(t *testing.T) {
	_, c := seedStore(t, 200, false)
	ctx := context.Background()

	samples := make([]time.Duration, 0, 500)
	for i := 0; i < 500; i++ {
		identifier := fmt.Sprintf("user%04d.perf", i%200)
		start := time.Now()
		decision, err := c.Checker.Check(ctx, identifier, rbac.CapLeaveRequest)
		samples = append(samples, time.Since(start))
		if err != nil || !decision.Allowed() {
			t.Fatalf("check %s: %v %+v", identifier, err, decision)
		}
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("check latency regression: p95=%s", p95)
	}
}

func TestSweepJobThroughput(t *testing.T) {
	store, c := seedStore(t, 500, true)
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := jobs.NewGrantSweepJob(c.Sweeper, nil, metrics)

	task, err := jobs.NewGrantSweepTask(jobs.TriggerManual)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	start := time.Now()
	if err := job.Handle(context.Background(), task); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("sweep of 500 grants took %s", elapsed)
	}
	if err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskGrantSweep, nil)); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	for i := 0; i < 500; i += 97 {
		grants := store.Grants(fmt.Sprintf("user%04d.perf", i))
		if len(grants) != 1 || grants[0].State != rbac.GrantExpired {
			t.Fatalf("grant for user %d not expired: %+v", i, grants)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got := metricValue(t, families, "odyssey_hr_grants_expired_total", nil); got != 500 {
		t.Fatalf("expired counter = %v, want 500", got)
	}
	if got := metricValue(t, families, "odyssey_hr_jobs_total", map[string]string{"job": jobs.TaskGrantSweep, "status": "success"}); got != 2 {
		t.Fatalf("successful sweeps = %v, want 2", got)
	}
	if mean := histogramMean(t, families, "odyssey_hr_job_duration_seconds", map[string]string{"job": jobs.TaskGrantSweep}); mean > 5 {
		t.Fatalf("sweep duration above budget: %f", mean)
	}
}

func BenchmarkCheckerCheck(b *testing.B) {
	_, c := seedStore(b, 100, false)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Checker.Check(ctx, "user0042.perf", rbac.CapAttendanceRecord); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvaluate(b *testing.B) {
	catalog := rbac.DefaultCatalog()
	now := time.Now()
	grants := []rbac.Grant{
		{Role: rbac.RoleEmployee, State: rbac.GrantActive},
		{Role: rbac.RoleDepartmentHead, State: rbac.GrantActive},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rbac.Evaluate(catalog, grants, rbac.CapPerformanceReview, now)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted))*0.95+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	have := make(map[string]string, len(metric.GetLabel()))
	for _, lp := range metric.GetLabel() {
		have[lp.GetName()] = lp.GetValue()
	}
	for key, want := range labels {
		if have[key] != want {
			return false
		}
	}
	return true
}
