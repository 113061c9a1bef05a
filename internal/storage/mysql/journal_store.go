package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	xerrors "walletlink/internal/errors"
	"walletlink/internal/journal"
)

const (
	insertJournalSQL = `INSERT INTO wallet_journal
    (id, kind, outcome, account, chain_id, code, message, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	listJournalSQL = `SELECT id, kind, outcome, account, chain_id, code, message, created_at
    FROM wallet_journal ORDER BY created_at DESC, id DESC LIMIT ?`
)

// JournalStore 将钱包流水写入 MySQL。
type JournalStore struct {
	db *sql.DB
}

var _ journal.Store = (*JournalStore)(nil)

// NewJournalStore 建立连接并执行迁移。
func NewJournalStore(ctx context.Context, cfg Config) (*JournalStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化 MySQL 流水存储失败")
	}
	if _, err := newMigrator(db, nil).run(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "执行数据库迁移失败")
	}
	return &JournalStore{db: db}, nil
}

// Append 实现 journal.Store。
func (s *JournalStore) Append(ctx context.Context, entry *journal.Entry) error {
	if err := journal.Prepare(entry); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, insertJournalSQL,
		entry.ID,
		string(entry.Kind),
		string(entry.Outcome),
		entry.Account,
		entry.ChainID,
		entry.Code,
		entry.Message,
		entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入钱包流水失败", xerrors.WithMetadata("kind", string(entry.Kind)))
	}
	return nil
}

// ListLatest 实现 journal.Store。
func (s *JournalStore) ListLatest(ctx context.Context, limit int) ([]journal.Entry, error) {
	rows, err := s.db.QueryContext(ctx, listJournalSQL, journal.NormalizeLimit(limit))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询钱包流水失败")
	}
	defer rows.Close()

	var entries []journal.Entry
	for rows.Next() {
		var (
			entry     journal.Entry
			kind      string
			outcome   string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &kind, &outcome, &entry.Account, &entry.ChainID, &entry.Code, &entry.Message, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, fmt.Errorf("解析钱包流水失败: %w", err), "")
		}
		entry.Kind = journal.Kind(kind)
		entry.Outcome = journal.Outcome(outcome)
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历钱包流水失败")
	}
	return entries, nil
}

// Close 释放连接池。
func (s *JournalStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
