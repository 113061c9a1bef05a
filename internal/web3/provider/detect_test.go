package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"walletlink/internal/config"
	"walletlink/internal/web3"
	"walletlink/internal/web3/ethereum"
	"walletlink/internal/web3/simulated"
)

type chainService struct{}

func (chainService) ChainId() string { return "0x89" }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDetectNone(t *testing.T) {
	require.Nil(t, Detect(context.Background(), config.ProviderConfig{Driver: "none"}, quiet()))
	require.Nil(t, Detect(context.Background(), config.ProviderConfig{Driver: "rpc"}, quiet()))
}

func TestDetectSimulated(t *testing.T) {
	p := Detect(context.Background(), config.ProviderConfig{
		Driver:    "simulated",
		Simulated: config.SimulatedConfig{Accounts: []string{"0x8ba1f109551bD432803012645Ac136ddd64DBA72"}, ChainID: 56},
	}, quiet())
	require.IsType(t, &simulated.Provider{}, p)
	defer Release(p)

	var chain string
	require.NoError(t, p.Request(context.Background(), web3.RequestArguments{Method: web3.MethodChainID}, &chain))
	require.Equal(t, "0x38", chain)
}

func TestDetectUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(gethrpc.NewServer())
	url := server.URL
	server.Close()

	p := Detect(context.Background(), config.ProviderConfig{Driver: "rpc", Endpoint: url, DialTimeoutSeconds: 1}, quiet())
	require.Nil(t, p)
}

func TestDetectRPCEndpoint(t *testing.T) {
	rpcServer := gethrpc.NewServer()
	require.NoError(t, rpcServer.RegisterName("eth", chainService{}))
	t.Cleanup(rpcServer.Stop)
	server := httptest.NewServer(rpcServer)
	t.Cleanup(server.Close)

	p := Detect(context.Background(), config.ProviderConfig{Driver: "rpc", Endpoint: server.URL, PollIntervalSeconds: 1}, quiet())
	require.IsType(t, &ethereum.Provider{}, p)
	Release(p)
}
