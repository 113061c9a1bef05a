package walletlink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Frame is a message pushed on the session stream.
type Frame struct {
	Type    string    `json:"type"`
	Op      string    `json:"op,omitempty"`
	Session *Session  `json:"session,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// Stream is an open session stream. Frames must be read from a single
// goroutine; commands may be sent concurrently with reads.
type Stream struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// OpenStream dials the websocket session stream. The first frame is the
// current snapshot.
func (c *Client) OpenStream(ctx context.Context) (*Stream, error) {
	u, err := c.resolve("/api/v1/wallet/stream")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	if token := c.AccessToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(resp.Status)}
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next frame arrives.
func (s *Stream) Next() (Frame, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return frame, nil
}

// Connect sends a connect command; the outcome arrives as frames.
func (s *Stream) Connect() error {
	return s.send(map[string]any{"op": "connect"})
}

// Disconnect sends a disconnect command.
func (s *Stream) Disconnect() error {
	return s.send(map[string]any{"op": "disconnect"})
}

// SwitchNetwork sends a switchNetwork command.
func (s *Stream) SwitchNetwork(chainID uint64) error {
	return s.send(map[string]any{"op": "switchNetwork", "chainId": chainID})
}

func (s *Stream) send(cmd map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(cmd)
}

// Close closes the stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}
