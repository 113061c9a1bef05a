package api

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"walletlink/internal/wallet"
	"walletlink/internal/web3"
	"walletlink/internal/web3/simulated"
)

func dialStream(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/v1/wallet/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame streamFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestStreamPushesSnapshotsAndRunsCommands(t *testing.T) {
	f := newFixture(t, simulated.New(simulated.Config{Accounts: []string{alice}, ChainID: 56}), "")
	conn := dialStream(t, f, "")

	first := readFrame(t, conn)
	require.Equal(t, "session", first.Type)
	require.Equal(t, wallet.Session{ChainID: 56}, first.Session.Session)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "connect"}))

	var acked, sawLoading bool
	var last wallet.Session
	for !acked || !last.IsConnected {
		frame := readFrame(t, conn)
		switch frame.Type {
		case "ack":
			require.Equal(t, opConnect, frame.Op)
			acked = true
		case "session":
			last = frame.Session.Session
			sawLoading = sawLoading || last.IsLoading
		default:
			t.Fatalf("unexpected frame %+v", frame)
		}
	}
	require.True(t, sawLoading)
	require.Equal(t, wallet.Session{Account: alice, ChainID: 56, IsConnected: true}, last)
}

func TestStreamRejectsInvalidCommands(t *testing.T) {
	f := newFixture(t, simulated.New(simulated.Config{}), "")
	conn := dialStream(t, f, "")
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nope")))
	frame := readFrame(t, conn)
	require.Equal(t, "error", frame.Type)
	require.Equal(t, "INVALID_ARGUMENT", frame.Error.Code)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "switchNetwork", "chainId": "0x89"}))
	frame = readFrame(t, conn)
	require.Equal(t, "error", frame.Type)
	require.Equal(t, opSwitchNetwork, frame.Op)

	for _, raw := range []string{
		`{"op":"switchNetwork","chainId":137.9}`,
		`{"op":"switchNetwork","chainId":-1}`,
		`{"op":"switchNetwork","chainId":1e3}`,
	} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
		frame = readFrame(t, conn)
		require.Equal(t, "error", frame.Type, raw)
		require.Equal(t, "INVALID_ARGUMENT", frame.Error.Code, raw)
	}
	require.Equal(t, 0, f.provider.CallCount(web3.MethodSwitchChain))

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "dance"}))
	frame = readFrame(t, conn)
	require.Equal(t, "error", frame.Type)
	require.Equal(t, "dance", frame.Op)
}

func TestStreamWithoutProvider(t *testing.T) {
	f := newFixture(t, nil, "secret")
	conn := dialStream(t, f, "?token=secret")

	first := readFrame(t, conn)
	require.False(t, first.Session.ProviderAvailable)

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "connect"}))
	frame := readFrame(t, conn)
	require.Equal(t, "error", frame.Type)
	require.Equal(t, string(wallet.CodeProviderUnavailable), frame.Error.Code)
}

func TestStreamClosesWithManager(t *testing.T) {
	f := newFixture(t, simulated.New(simulated.Config{}), "")
	conn := dialStream(t, f, "")
	readFrame(t, conn)

	f.manager.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
