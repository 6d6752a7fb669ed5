// Package checkpoint 持久化Frontier状态,支持中断后恢复
package checkpoint

import (
	"context"
	"fmt"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

// Store 检查点存储
// Load 在没有检查点时返回空状态;检查点损坏时返回 *models.CheckpointError
type Store interface {
	Load(ctx context.Context) (models.FrontierState, error)
	Save(ctx context.Context, state models.FrontierState) error
	Close() error
}

// Backend 检查点后端类型
type Backend string

const (
	BackendFile  Backend = "file"
	BackendRedis Backend = "redis"
)

// Options 创建检查点存储的参数
type Options struct {
	Backend     Backend
	Dir         string
	PendingFile string
	VisitedFile string
	RedisAddr   string
	RedisPrefix string
}

// Open 按后端类型创建检查点存储
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendRedis:
		return NewRedisStore(opts.RedisAddr, opts.RedisPrefix), nil
	case BackendFile, "":
		return NewFileStore(opts.Dir, opts.PendingFile, opts.VisitedFile)
	default:
		return nil, fmt.Errorf("未知的检查点后端: %q (可选: file, redis)", opts.Backend)
	}
}
