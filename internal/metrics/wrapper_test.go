package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWrapper(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	w := NewWrapper(m)

	w.ConnectedSet(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))
	w.ConnectedSet(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected))

	w.SubscriptionsSet(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Subscriptions))

	w.ReconnectsInc()
	w.ReconnectsInc()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reconnects))

	w.MessagesInc("decision")
	w.MessagesInc("decision")
	w.MessagesInc("notification")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("decision")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues("notification")))

	w.HeartbeatsInc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatsSent))

	w.ParseErrorsInc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseErrors))

	w.ErrorsInc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal))
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two instances on separate registries must not collide.
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.Connected.Set(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Connected))
}
