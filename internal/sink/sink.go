// Package sink 保存爬取到的页面文本
package sink

import (
	"context"
	"errors"
)

// Sink 页面文本的存储目标
type Sink interface {
	Store(ctx context.Context, pageURL string, text string) error
	Close() error
}

// Multi 将同一页面写入全部目标
type Multi []Sink

// Store 依次写入每个目标,一个失败不影响其他目标
func (m Multi) Store(ctx context.Context, pageURL string, text string) error {
	var errs []error
	for _, s := range m {
		if err := s.Store(ctx, pageURL, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部目标
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
