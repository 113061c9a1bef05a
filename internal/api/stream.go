package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	xerrors "walletlink/internal/errors"
	"walletlink/internal/wallet"
)

const (
	streamBuffer   = 16
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxCommandSize = 4096
)

// 客户端可发送的指令。
const (
	opConnect       = "connect"
	opDisconnect    = "disconnect"
	opSwitchNetwork = "switchNetwork"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamFrame 为服务端推送的帧：session 快照、指令确认或错误。
type streamFrame struct {
	Type    string           `json:"type"`
	Op      string           `json:"op,omitempty"`
	Session *sessionResponse `json:"session,omitempty"`
	Error   *errorBody       `json:"error,omitempty"`
}

// handleStream 将连接升级为 websocket：先推送当前快照，之后推送每次更新，
// 并接受 {"op":"connect"|"disconnect"|"switchNetwork","chainId":n} 指令。
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	client := uuid.NewString()
	log := s.logger.With(slog.String("client", client))
	log.Debug("stream client connected", slog.String("remote", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates := make(chan wallet.Session, streamBuffer)
	sub := s.wallet.SubscribeSession(updates)
	defer sub.Unsubscribe()

	out := make(chan streamFrame, streamBuffer)
	go s.readCommands(ctx, cancel, conn, out, log)

	s.writeFrames(ctx, conn, updates, sub.Err(), out, log)
	_ = conn.Close()
	log.Debug("stream client disconnected")
}

// writeFrames 是连接唯一的写入者。
func (s *Server) writeFrames(ctx context.Context, conn *websocket.Conn, updates <-chan wallet.Session, subErr <-chan error, out <-chan streamFrame, log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(frame streamFrame) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			log.Debug("stream write failed", slog.Any("error", err))
			return false
		}
		return true
	}

	current := s.sessionView()
	if !write(streamFrame{Type: "session", Session: &current}) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case <-subErr:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "wallet manager closed"), time.Now().Add(writeWait))
			return
		case session := <-updates:
			view := s.viewOf(session)
			if !write(streamFrame{Type: "session", Session: &view}) {
				return
			}
		case frame := <-out:
			if !write(frame) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readCommands 读取客户端指令，连接断开时取消 ctx。
func (s *Server) readCommands(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- streamFrame, log *slog.Logger) {
	defer cancel()
	conn.SetReadLimit(maxCommandSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("stream read failed", slog.Any("error", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		// Connect 会阻塞至用户在钱包中确认，指令在独立 goroutine 中执行。
		go s.runCommand(ctx, payload, out)
	}
}

func (s *Server) runCommand(ctx context.Context, payload []byte, out chan<- streamFrame) {
	if !gjson.ValidBytes(payload) {
		s.reply(ctx, out, "", xerrors.New(xerrors.CodeInvalidArgument, "指令必须为 JSON"))
		return
	}
	op := gjson.GetBytes(payload, "op").String()
	var err error
	switch op {
	case opConnect:
		err = s.wallet.Connect(ctx)
	case opDisconnect:
		s.wallet.Disconnect()
	case opSwitchNetwork:
		chainID, parseErr := commandChainID(payload)
		if parseErr != nil {
			err = parseErr
			break
		}
		err = s.wallet.SwitchNetwork(ctx, chainID)
	default:
		err = xerrors.New(xerrors.CodeInvalidArgument, "未知指令: "+op)
	}
	s.reply(ctx, out, op, err)
}

// commandChainID reads chainId as a non-negative JSON integer, matching what
// the HTTP handler accepts when decoding into uint64.
func commandChainID(payload []byte) (uint64, error) {
	raw := gjson.GetBytes(payload, "chainId")
	if raw.Type != gjson.Number {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "chainId 必须为数字")
	}
	id, err := strconv.ParseUint(raw.Raw, 10, 64)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "chainId 必须为非负整数")
	}
	return id, nil
}

func (s *Server) reply(ctx context.Context, out chan<- streamFrame, op string, err error) {
	frame := streamFrame{Type: "ack", Op: op}
	if err != nil {
		body := errorBodyOf(err)
		frame = streamFrame{Type: "error", Op: op, Error: &body}
	}
	select {
	case out <- frame:
	case <-ctx.Done():
	}
}
