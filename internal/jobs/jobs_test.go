package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/d60-Lab/feed-engine/config"
	"github.com/d60-Lab/feed-engine/pkg/metrics"
)

func TestJob_RunOnceRecordsOutcome(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("unit_ok", "ok"))
	errBefore := testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("unit_err", "error"))

	ok := New("unit_ok", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, ok.RunOnce(context.Background()))

	boom := errors.New("boom")
	bad := New("unit_err", time.Hour, func(context.Context) error { return boom })
	assert.ErrorIs(t, bad.RunOnce(context.Background()), boom)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("unit_ok", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("unit_err", "error")))
}

func TestJob_TimeoutAndPanic(t *testing.T) {
	slow := New("unit_slow", time.Hour, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithTimeout(10*time.Millisecond))
	assert.ErrorIs(t, slow.RunOnce(context.Background()), context.DeadlineExceeded)

	p := New("unit_panic", time.Hour, func(context.Context) error { panic("bad") })
	err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestJob_ServeKeepsRunningAfterFailures(t *testing.T) {
	var calls atomic.Int32
	j := New("unit_loop", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("always fails")
	}, RunOnStart())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Serve(ctx) }()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
}

func TestJob_InvalidInterval(t *testing.T) {
	j := New("unit_zero", 0, func(context.Context) error { return nil })
	assert.Error(t, j.Serve(context.Background()))
}

func TestBuild_SkipsDisabledJobs(t *testing.T) {
	cfg := config.Default().Jobs
	all := Build(cfg, Deps{})
	names := make([]string, len(all))
	for i, j := range all {
		names[i] = j.Name()
	}
	assert.ElementsMatch(t, []string{
		HourlyTrending, DailyTrending, WeeklyTrending, MonthlyTrending,
		Hashtags, TrendingCleanup, Sweep, InterestDecay,
	}, names)

	cfg.InterestDecay = 0
	cfg.LongTrending = 0
	assert.Len(t, Build(cfg, Deps{}), 5)
}

func TestSupervisor_EventHookLogsRestarts(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sup := NewSupervisor("test", config.JobsConfig{FailureThreshold: 1, FailureBackoff: 10 * time.Millisecond}, zap.New(core))

	var runs atomic.Int32
	sup.Add(&failing{runs: &runs})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)
	assert.Eventually(t, func() bool { return logs.FilterLevelExact(zap.ErrorLevel).Len() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-errCh
	assert.GreaterOrEqual(t, runs.Load(), int32(1))
}

type failing struct{ runs *atomic.Int32 }

func (f *failing) Serve(context.Context) error {
	f.runs.Add(1)
	return errors.New("crash")
}

var _ suture.Service = (*failing)(nil)
