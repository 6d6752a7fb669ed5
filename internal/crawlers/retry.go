package crawlers

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/RecoveryAshes/scopecrawl/internal/utils"
)

// RetryPolicy 超时重试策略
// 只有超时会被重试,其他错误立即返回
type RetryPolicy struct {
	MaxRetries int           // 最大重试次数,总尝试次数为MaxRetries+1
	Timeout    time.Duration // 单次尝试超时
	MinDelay   time.Duration // 重试前随机等待下限
	MaxDelay   time.Duration // 重试前随机等待上限

	// sleep 可替换,便于测试
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy 默认策略: 重试3次,超时60秒,间隔1-3秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Timeout:    60 * time.Second,
		MinDelay:   time.Second,
		MaxDelay:   3 * time.Second,
	}
}

// Do 执行fn直到成功、出现非超时错误或重试耗尽,返回尝试次数
// 每次尝试使用独立的超时,且不随ctx取消而中止,保证进行中的请求自然结束;
// ctx取消后不再发起新的尝试,返回ErrInterrupted
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	attempts := 0
	for {
		attempts++
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return attempts, nil
		}
		if !IsTimeout(err) {
			return attempts, err
		}
		if attempts > p.MaxRetries {
			return attempts, fmt.Errorf("%w (%d次): %w", ErrRetriesExhausted, attempts, ErrFetchTimeout)
		}
		if ctx.Err() != nil {
			return attempts, ErrInterrupted
		}

		delay := RandomDelay(p.MinDelay, p.MaxDelay)
		utils.Debugf("第%d次尝试超时, %v后重试", attempts, delay)
		if err := p.wait(ctx, delay); err != nil {
			return attempts, ErrInterrupted
		}
	}
}

func (p RetryPolicy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// RandomDelay 返回[min, max]之间的随机时长
func RandomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// Sleep 可被ctx打断的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
