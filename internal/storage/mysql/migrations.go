package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"walletlink/deploy/migrations"
	"walletlink/pkg/logger"
)

const (
	createSchemaMigrationsSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`
	selectAppliedVersionsSQL = `SELECT version FROM schema_migrations`
	recordMigrationSQL       = `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`
)

var embeddedMigrations fs.ReadFileFS = migrations.Files

type migrationFile struct {
	version    string
	name       string
	statements []string
}

// migrator 按版本顺序把嵌入的 SQL 文件应用到流水库。
type migrator struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

func newMigrator(db *sql.DB, log *slog.Logger) *migrator {
	if log == nil {
		log = logger.Named("mysql")
	}
	return &migrator{db: db, log: log, now: time.Now}
}

// run 返回本次新应用的迁移数量。
func (m *migrator) run(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, createSchemaMigrationsSQL); err != nil {
		return 0, fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	files, err := loadMigrationFiles()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, file := range files {
		if _, ok := applied[file.version]; ok {
			m.log.Debug("migration already applied", slog.String("version", file.version))
			continue
		}
		if err := m.apply(ctx, file); err != nil {
			m.log.Error("migration failed",
				slog.String("version", file.version),
				slog.String("file", file.name),
				slog.Any("error", err))
			return count, err
		}
		count++
	}
	if count > 0 {
		m.log.Info("schema up to date", slog.Int("applied", count), slog.Int("known", len(files)))
	}
	return count, nil
}

func (m *migrator) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.db.QueryContext(ctx, selectAppliedVersionsSQL)
	if err != nil {
		return nil, fmt.Errorf("查询 schema_migrations 失败: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("解析 schema_migrations 失败: %w", err)
		}
		versions[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 schema_migrations 失败: %w", err)
	}
	return versions, nil
}

func (m *migrator) apply(ctx context.Context, file migrationFile) error {
	started := m.now()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}

	for i, stmt := range file.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("执行迁移 %s 第 %d 条语句失败: %w", file.name, i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, recordMigrationSQL, file.version, started.Unix()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("记录迁移版本 %s 失败: %w", file.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", file.version, err)
	}

	m.log.Info("migration applied",
		slog.String("version", file.version),
		slog.String("file", file.name),
		slog.Int("statements", len(file.statements)),
		slog.Duration("took", m.now().Sub(started)))
	return nil
}

func loadMigrationFiles() ([]migrationFile, error) {
	entries, err := fs.ReadDir(embeddedMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("读取迁移目录失败: %w", err)
	}

	files := make([]migrationFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := embeddedMigrations.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", entry.Name(), err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		files = append(files, migrationFile{
			version:    parseMigrationVersion(entry.Name()),
			name:       entry.Name(),
			statements: statements,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].version == files[j].version {
			return files[i].name < files[j].name
		}
		return files[i].version < files[j].version
	})
	return files, nil
}

func splitSQLStatements(content string) []string {
	var statements []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}

// parseMigrationVersion 取文件名中第一个下划线或点号之前的部分。
func parseMigrationVersion(name string) string {
	if idx := strings.IndexAny(name, "_."); idx > 0 {
		return name[:idx]
	}
	return name
}
