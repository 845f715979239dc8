package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// The three credits counters all count credits, not jobs: a premium
// settlement moves the same amount through reserved and then committed or
// refunded.
func TestMetrics_CreditCountersShareUnits(t *testing.T) {
	m := New()

	m.JobSubmitted("premium", 3)
	m.JobSubmitted("free", 1)

	m.JobCompleted(3)
	m.JobFailed("timeout", 1)

	assert.Equal(t, float64(4), testutil.ToFloat64(m.creditsReserved))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.creditsCommitted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.creditsRefunded))
}

// A settlement that resolved nothing (the reservation was already settled)
// still counts the job but moves no credits.
func TestMetrics_ZeroCreditSettleCountsJobOnly(t *testing.T) {
	m := New()

	m.JobCompleted(0)
	m.JobFailed("timeout", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.jobsFailed.WithLabelValues("timeout")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.creditsCommitted))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.creditsRefunded))
}

// Nil receiver is the disabled mode; every method must be a no-op.
func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.JobSubmitted("free", 1)
		m.JobRejected("invalid_request")
		m.JobCompleted(1)
		m.JobFailed("timeout", 1)
		m.PollCycle()
	})
	assert.NotNil(t, m.Handler())
}
