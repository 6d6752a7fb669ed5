package checkpoint

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

// DefaultRedisPrefix 默认键前缀
const DefaultRedisPrefix = "scopecrawl:"

// kvClient RedisStore用到的命令
type kvClient interface {
	MSet(ctx context.Context, values ...interface{}) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Close() error
}

// RedisStore 在Redis中保存检查点
// Pending与Visited分别存放在 <prefix>pending 和 <prefix>visited 两个键,
// 通过一次MSET写入、一次MGET读取
type RedisStore struct {
	client kvClient
	prefix string
}

// NewRedisStore 连接Redis
func NewRedisStore(addr, prefix string) *RedisStore {
	return newRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix)
}

func newRedisStoreWithClient(client kvClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) pendingKey() string { return s.prefix + "pending" }
func (s *RedisStore) visitedKey() string { return s.prefix + "visited" }

// Location 键前缀
func (s *RedisStore) Location() string {
	return "redis:" + s.prefix
}

// Load 读取检查点,键不存在时视为空列表
func (s *RedisStore) Load(ctx context.Context) (models.FrontierState, error) {
	values, err := s.client.MGet(ctx, s.pendingKey(), s.visitedKey()).Result()
	if err != nil {
		return models.FrontierState{}, &models.CheckpointError{Location: s.Location(), Cause: err}
	}
	if len(values) != 2 {
		return models.FrontierState{}, &models.CheckpointError{
			Location: s.Location(),
			Cause:    fmt.Errorf("MGET返回 %d 个值, 期望 2", len(values)),
		}
	}

	pending, err := decodeValue(s.pendingKey(), values[0])
	if err != nil {
		return models.FrontierState{}, err
	}
	visited, err := decodeValue(s.visitedKey(), values[1])
	if err != nil {
		return models.FrontierState{}, err
	}
	return models.FrontierState{Pending: pending, Visited: visited}.Normalize(), nil
}

// Save 一次MSET写入两个键
func (s *RedisStore) Save(ctx context.Context, state models.FrontierState) error {
	state = state.Normalize()

	pending, err := models.MarshalList(state.Pending)
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}
	visited, err := models.MarshalList(state.Visited)
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}

	if err := s.client.MSet(ctx, s.pendingKey(), pending, s.visitedKey(), visited).Err(); err != nil {
		return fmt.Errorf("写入Redis检查点失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeValue(key string, value interface{}) ([]string, error) {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, &models.CheckpointError{Location: key, Cause: fmt.Errorf("非预期的值类型 %T", value)}
	}

	urls, err := models.UnmarshalList(data)
	if err != nil {
		return nil, &models.CheckpointError{Location: key, Cause: err}
	}
	return urls, nil
}
