package relay

import (
	"context"
	"errors"
	"sync"
)

// memoryPublisher 使用 channel 缓存消息，供转发测试断言。
type memoryPublisher struct {
	ch     chan Message
	mu     sync.Mutex
	closed bool
}

func newMemoryPublisher(size int) *memoryPublisher {
	if size <= 0 {
		size = 64
	}
	return &memoryPublisher{ch: make(chan Message, size)}
}

func (p *memoryPublisher) Name() string { return "memory" }

func (p *memoryPublisher) Publish(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("publisher 已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- msg:
		return nil
	}
}

func (p *memoryPublisher) Messages() <-chan Message {
	return p.ch
}

func (p *memoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		close(p.ch)
		p.closed = true
	}
	return nil
}
