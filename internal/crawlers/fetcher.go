package crawlers

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrFetchTimeout 单次抓取超时,可重试
	ErrFetchTimeout = errors.New("页面加载超时")

	// ErrRetriesExhausted 超时重试次数耗尽
	ErrRetriesExhausted = errors.New("重试次数耗尽")

	// ErrInterrupted 重试前收到关闭信号
	ErrInterrupted = errors.New("抓取被中断")
)

// Fetcher 页面抓取能力: 返回渲染后的HTML
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

// IsTimeout 判断错误是否为可重试的超时
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFetchTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
