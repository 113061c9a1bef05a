package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"walletlink/internal/journal"
	"walletlink/internal/observability/metrics"
	"walletlink/internal/wallet"
	"walletlink/internal/web3/simulated"
)

const alice = "0xAbC0000000000000000000000000000000000123"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	server   *httptest.Server
	manager  *wallet.Manager
	provider *simulated.Provider
	store    *journal.MemoryStore
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, provider *simulated.Provider, token string) *fixture {
	t.Helper()
	store := journal.NewMemoryStore(32)
	var m *wallet.Manager
	if provider == nil {
		m = wallet.New(context.Background(), nil, wallet.WithLogger(discardLogger()), wallet.WithJournal(store))
	} else {
		m = wallet.New(context.Background(), provider, wallet.WithLogger(discardLogger()), wallet.WithJournal(store))
	}
	t.Cleanup(m.Close)
	<-m.Ready()

	mx := metrics.New()
	srv := NewServer(Config{Token: token, Logger: discardLogger(), Audit: discardLogger(), Metrics: mx}, m, store)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{server: ts, manager: m, provider: provider, store: store, metrics: mx}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestSessionAndConnect(t *testing.T) {
	f := newFixture(t, simulated.New(simulated.Config{Accounts: []string{alice}, ChainID: 137}), "")

	resp, data := f.do(t, http.MethodGet, "/api/v1/wallet", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[sessionResponse](t, data)
	require.True(t, view.ProviderAvailable)
	require.False(t, view.IsConnected)
	require.Equal(t, uint64(137), view.ChainID)
	require.Equal(t, "Polygon", view.ChainLabel)

	resp, data = f.do(t, http.MethodPost, "/api/v1/wallet/connect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decode[sessionResponse](t, data)
	require.Equal(t, wallet.Session{Account: alice, ChainID: 137, IsConnected: true}, view.Session)

	resp, data = f.do(t, http.MethodGet, "/api/v1/journal?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]journal.Entry](t, data)
	require.NotEmpty(t, entries)
	require.Equal(t, journal.KindConnect, entries[0].Kind)

	resp, data = f.do(t, http.MethodPost, "/api/v1/wallet/disconnect", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, wallet.Session{}, decode[sessionResponse](t, data).Session)
}

func TestConnectWithoutProvider(t *testing.T) {
	f := newFixture(t, nil, "")

	resp, data := f.do(t, http.MethodPost, "/api/v1/wallet/connect", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decode[errorResponse](t, data)
	require.Equal(t, string(wallet.CodeProviderUnavailable), body.Error.Code)

	resp, data = f.do(t, http.MethodGet, "/api/v1/wallet", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, decode[sessionResponse](t, data).ProviderAvailable)
}

func TestSwitchNetwork(t *testing.T) {
	p := simulated.New(simulated.Config{Accounts: []string{alice}, ChainID: 1, KnownChains: []uint64{56}})
	f := newFixture(t, p, "")

	resp, _ := f.do(t, http.MethodPost, "/api/v1/wallet/network", "{not json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := f.do(t, http.MethodPost, "/api/v1/wallet/network", switchNetworkRequest{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_ARGUMENT", decode[errorResponse](t, data).Error.Code)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/wallet/network", switchNetworkRequest{ChainID: 56})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool { return f.manager.Session().ChainID == 56 }, 2*time.Second, 5*time.Millisecond)
}

func TestNetworks(t *testing.T) {
	f := newFixture(t, nil, "")

	resp, data := f.do(t, http.MethodGet, "/api/v1/networks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	views := decode[[]networkView](t, data)
	require.Len(t, views, 4)

	require.Equal(t, uint64(1), views[0].ChainID)
	require.Equal(t, "Ethereum", views[0].Label)
	require.True(t, views[0].Registered)
	require.NotNil(t, views[0].Descriptor)

	require.Equal(t, uint64(11155111), views[3].ChainID)
	require.Equal(t, "Sepolia", views[3].Label)
	require.False(t, views[3].Registered)
	require.Nil(t, views[3].Descriptor)
}

func TestJournalLimitValidation(t *testing.T) {
	f := newFixture(t, nil, "")

	resp, _ := f.do(t, http.MethodGet, "/api/v1/journal?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data := f.do(t, http.MethodGet, "/api/v1/journal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[[]journal.Entry](t, data))
}

func TestTokenAuthentication(t *testing.T) {
	f := newFixture(t, nil, "secret")

	resp, _ := f.do(t, http.MethodGet, "/api/v1/wallet", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/wallet", nil, "Authorization", "Bearer wrong")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/wallet", nil, "Authorization", "Bearer secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/wallet?token=secret", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil, "")

	resp, _ := f.do(t, http.MethodGet, "/api/v1/wallet/connect", nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil, "")
	f.do(t, http.MethodGet, "/api/v1/networks", nil)

	resp, data := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(data), `walletlink_http_requests_total{code="200",handler="networks",method="GET"} 1`)
}
