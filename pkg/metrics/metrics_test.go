package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimerObserveDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(2 * time.Millisecond)
	d := timer.ObserveDuration(JobDuration, "timer_test")

	assert.GreaterOrEqual(t, d, 2*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(JobDuration, "feed_job_duration_seconds"))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(JobRunsTotal.WithLabelValues("counter_test", "ok"))
	JobRunsTotal.WithLabelValues("counter_test", "ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(JobRunsTotal.WithLabelValues("counter_test", "ok")))
}
