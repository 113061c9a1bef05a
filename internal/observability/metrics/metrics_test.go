package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"walletlink/internal/relay"
	"walletlink/internal/wallet"
	"walletlink/internal/web3"
	"walletlink/internal/web3/simulated"
)

func TestObserveHTTPRequest(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("wallet", http.MethodGet, http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest("wallet", http.MethodPost, http.StatusServiceUnavailable, time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("wallet", http.MethodGet, "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.httpErrors.WithLabelValues("wallet", http.MethodPost)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.httpErrors.WithLabelValues("wallet", http.MethodGet)))
	require.Equal(t, 2, testutil.CollectAndCount(m.httpLatency))
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	handler := m.Middleware("networks", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/networks", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `walletlink_http_requests_total{code="418",handler="networks",method="GET"} 1`)
}

func TestInstrumentProvider(t *testing.T) {
	m := New()
	require.Nil(t, m.InstrumentProvider(nil))

	sim := simulated.New(simulated.Config{Accounts: []string{"0x8ba1f109551bD432803012645Ac136ddd64DBA72"}})
	p := m.InstrumentProvider(sim)

	var chain string
	require.NoError(t, p.Request(context.Background(), web3.RequestArguments{Method: web3.MethodChainID}, &chain))
	require.Equal(t, "0x1", chain)

	err := p.Request(context.Background(), web3.RequestArguments{
		Method: web3.MethodSwitchChain,
		Params: []any{web3.SwitchChainParameter{ChainID: "0x2a"}},
	}, nil)
	require.True(t, web3.IsUnrecognizedChain(err))

	require.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues(web3.MethodChainID, "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues(web3.MethodSwitchChain, "4902")))

	events := make(chan string, 1)
	sub := p.SubscribeChainChanged(events)
	defer sub.Unsubscribe()
	sim.SetChain(56)
	require.Equal(t, "0x38", <-events)
}

func TestSessionPublisher(t *testing.T) {
	m := New()
	pub := m.SessionPublisher()
	require.Equal(t, "metrics", pub.Name())

	msg := relay.NewMessage(wallet.Session{Account: "0x1", ChainID: 137, IsConnected: true})
	require.NoError(t, pub.Publish(context.Background(), msg))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionConnected))
	require.Equal(t, 137.0, testutil.ToFloat64(m.sessionChain))
	require.Equal(t, 0.0, testutil.ToFloat64(m.sessionLoading))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessionUpdates))
	require.NoError(t, pub.Close())

	expected := `
# HELP walletlink_session_connected 1 while a wallet account is connected.
# TYPE walletlink_session_connected gauge
walletlink_session_connected 1
`
	require.NoError(t, testutil.CollectAndCompare(m.sessionConnected, strings.NewReader(expected)))
}
