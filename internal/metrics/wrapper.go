package metrics

// Wrapper adapts Metrics to the small instrumentation interface the realtime
// manager accepts, avoiding a hard dependency on Prometheus types there.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) ConnectedSet(connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	w.m.Connected.Set(v)
}

func (w *Wrapper) SubscriptionsSet(n int) {
	w.m.Subscriptions.Set(float64(n))
}

func (w *Wrapper) ReconnectsInc() {
	w.m.Reconnects.Inc()
}

func (w *Wrapper) MessagesInc(msgType string) {
	w.m.MessagesReceived.WithLabelValues(msgType).Inc()
}

func (w *Wrapper) HeartbeatsInc() {
	w.m.HeartbeatsSent.Inc()
}

func (w *Wrapper) ParseErrorsInc() {
	w.m.ParseErrors.Inc()
}

func (w *Wrapper) ErrorsInc() {
	w.m.ErrorsTotal.Inc()
}
