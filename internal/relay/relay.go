// Package relay forwards wallet session snapshots to external consumers
// such as Redis subscribers or a RabbitMQ queue.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gethevent "github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"

	"walletlink/internal/wallet"
)

// Message 为一次转发的会话快照。
type Message struct {
	ID          string         `json:"id"`
	Session     wallet.Session `json:"session"`
	PublishedAt time.Time      `json:"publishedAt"`
}

// NewMessage 为快照分配 ID 与时间戳。
func NewMessage(session wallet.Session) Message {
	return Message{ID: uuid.NewString(), Session: session, PublishedAt: time.Now().UTC()}
}

// Encode 返回消息的 JSON 编码。
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Publisher 将会话快照投递到下游。
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Source 为会话快照的来源，wallet.Manager 实现了该接口。
type Source interface {
	Session() wallet.Session
	SubscribeSession(ch chan<- wallet.Session) gethevent.Subscription
}

const forwardBuffer = 32

// Forward 先投递当前快照，之后投递每一次更新，直到 ctx 结束或来源关闭。
// 投递失败只记录日志，不会中断转发。
func Forward(ctx context.Context, src Source, pub Publisher, log *slog.Logger) error {
	if src == nil || pub == nil {
		return errors.New("relay source and publisher are required")
	}
	updates := make(chan wallet.Session, forwardBuffer)
	sub := src.SubscribeSession(updates)
	defer sub.Unsubscribe()

	publish := func(s wallet.Session) {
		msg := NewMessage(s)
		if err := pub.Publish(ctx, msg); err != nil {
			log.Warn("relay publish failed", slog.String("publisher", pub.Name()), slog.String("message_id", msg.ID), slog.Any("error", err))
		}
	}

	publish(src.Session())
	for {
		select {
		case s := <-updates:
			publish(s)
		case err, ok := <-sub.Err():
			if ok && err != nil {
				return fmt.Errorf("session subscription ended: %w", err)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Fanout 将消息广播给多个 Publisher。
type Fanout struct {
	publishers []Publisher
}

// NewFanout 创建 Fanout，忽略 nil 与同名重复的 Publisher。
func NewFanout(publishers ...Publisher) *Fanout {
	seen := make(map[string]struct{}, len(publishers))
	list := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p == nil {
			continue
		}
		if _, ok := seen[p.Name()]; ok {
			continue
		}
		seen[p.Name()] = struct{}{}
		list = append(list, p)
	}
	return &Fanout{publishers: list}
}

// Name 实现 Publisher。
func (f *Fanout) Name() string { return "fanout" }

// Publish 将消息广播至所有 Publisher。
func (f *Fanout) Publish(ctx context.Context, msg Message) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("publisher %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close 关闭所有 Publisher。
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Len 返回 Publisher 数量。
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}
