package metrics

import (
	"context"

	"walletlink/internal/relay"
)

// SessionPublisher returns a relay.Publisher that mirrors each snapshot
// into the session gauges.
func (m *Metrics) SessionPublisher() relay.Publisher {
	return sessionPublisher{m: m}
}

type sessionPublisher struct{ m *Metrics }

func (p sessionPublisher) Name() string { return "metrics" }

func (p sessionPublisher) Publish(_ context.Context, msg relay.Message) error {
	s := msg.Session
	p.m.sessionConnected.Set(boolValue(s.IsConnected))
	p.m.sessionLoading.Set(boolValue(s.IsLoading))
	p.m.sessionChain.Set(float64(s.ChainID))
	p.m.sessionUpdates.Inc()
	return nil
}

func (p sessionPublisher) Close() error { return nil }

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
