package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite驱动

	"github.com/RecoveryAshes/scopecrawl/internal/utils"
)

// SQLiteSink 将页面文本保存到SQLite数据库
// 同一URL重复写入时覆盖
type SQLiteSink struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteSink 打开或创建数据库文件
func NewSQLiteSink(dbPath string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite只支持单个写入者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用WAL失败: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		url TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages(fetched_at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建数据表失败: %w", err)
	}

	utils.Debugf("SQLite存储已打开: %s", dbPath)
	return &SQLiteSink{db: db, dbPath: dbPath}, nil
}

// Store 插入或更新页面文本
func (s *SQLiteSink) Store(ctx context.Context, pageURL string, text string) error {
	query := `
	INSERT INTO pages (url, text, fetched_at) VALUES (?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET text = excluded.text, fetched_at = excluded.fetched_at
	`
	if _, err := s.db.ExecContext(ctx, query, pageURL, text, time.Now().UTC()); err != nil {
		return fmt.Errorf("写入SQLite失败 [%s]: %w", pageURL, err)
	}
	return nil
}

// Lookup 读取页面文本,不存在时返回 found=false
func (s *SQLiteSink) Lookup(ctx context.Context, pageURL string) (text string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT text FROM pages WHERE url = ?", pageURL).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("查询SQLite失败: %w", err)
	}
	return text, true, nil
}

// Count 已保存的页面数
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&n); err != nil {
		return 0, fmt.Errorf("查询SQLite失败: %w", err)
	}
	return n, nil
}

// Close 关闭数据库
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
