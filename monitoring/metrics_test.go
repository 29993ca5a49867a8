package monitoring

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_SessionGauge(t *testing.T) {
	m := NewMonitor()
	before := testutil.ToFloat64(activeSessions)

	m.SessionOpened()
	m.SessionOpened()
	assert.Equal(t, before+2, testutil.ToFloat64(activeSessions))

	m.SessionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(activeSessions))

	m.SessionClosed()
	assert.Equal(t, before, testutil.ToFloat64(activeSessions))
}

func TestMonitor_NilRecordsNothing(t *testing.T) {
	var m *Monitor
	before := testutil.ToFloat64(activeSessions)

	m.SessionOpened()
	m.SessionClosed()
	m.TrackSubmission("evt_001", "PAID")
	m.TrackTransition("evt_001", "PLAYED")
	m.TrackPaymentConfirmed("evt_001")
	m.TrackBuckets("evt_001", 1, 2, 3)

	assert.Equal(t, before, testutil.ToFloat64(activeSessions))
}
