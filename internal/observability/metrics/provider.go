package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	gethevent "github.com/ethereum/go-ethereum/event"

	"walletlink/internal/web3"
)

// InstrumentProvider wraps p so every request is counted and timed. A nil
// provider stays nil so wallet absence is preserved.
func (m *Metrics) InstrumentProvider(p web3.Provider) web3.Provider {
	if m == nil || p == nil {
		return p
	}
	return &instrumentedProvider{inner: p, metrics: m}
}

type instrumentedProvider struct {
	inner   web3.Provider
	metrics *Metrics
}

func (p *instrumentedProvider) Request(ctx context.Context, args web3.RequestArguments, result any) error {
	start := time.Now()
	err := p.inner.Request(ctx, args, result)
	p.metrics.providerLatency.WithLabelValues(args.Method).Observe(time.Since(start).Seconds())
	p.metrics.providerRequests.WithLabelValues(args.Method, outcome(err)).Inc()
	return err
}

func (p *instrumentedProvider) SubscribeAccountsChanged(ch chan<- []string) gethevent.Subscription {
	return p.inner.SubscribeAccountsChanged(ch)
}

func (p *instrumentedProvider) SubscribeChainChanged(ch chan<- string) gethevent.Subscription {
	return p.inner.SubscribeChainChanged(ch)
}

// Close releases the wrapped provider when it holds resources.
func (p *instrumentedProvider) Close() {
	if c, ok := p.inner.(interface{ Close() }); ok {
		c.Close()
	}
}

// outcome labels an error by its provider code so rejections (4001) and
// unknown chains (4902) are distinguishable.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code, ok := web3.ErrorCode(err); ok {
		return strconv.Itoa(code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
