// Package journal 记录钱包连接管理器的操作与事件流水，供 API 查询与审计。
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	xerrors "walletlink/internal/errors"
)

// Kind 表示流水条目的类型。
type Kind string

const (
	KindProbe           Kind = "probe"
	KindConnect         Kind = "connect"
	KindDisconnect      Kind = "disconnect"
	KindSwitchNetwork   Kind = "switch_network"
	KindAddChain        Kind = "add_chain"
	KindAccountsChanged Kind = "accounts_changed"
	KindChainChanged    Kind = "chain_changed"
)

// Outcome 表示操作结果。
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Entry 是一条流水记录。
type Entry struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Outcome   Outcome   `json:"outcome"`
	Account   string    `json:"account,omitempty"`
	ChainID   uint64    `json:"chainId,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store 抽象了流水的持久化接口。
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	ListLatest(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

const (
	// DefaultListLimit 为未指定 limit 时返回的条目数。
	DefaultListLimit = 50
	// MaxListLimit 为单次查询的上限。
	MaxListLimit = 500
)

// NormalizeLimit 将 limit 约束到合法范围。
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Prepare 校验条目并补全 ID 与时间戳。
func Prepare(entry *Entry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水条目不能为空")
	}
	if entry.Kind == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流水类型不能为空")
	}
	if entry.Outcome == "" {
		entry.Outcome = OutcomeOK
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return nil
}
