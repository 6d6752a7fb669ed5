package main

import (
	"fmt"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

// ValidateURL 验证URL格式
func ValidateURL(urlStr string) error {
	return models.ValidateURL(urlStr)
}

// ValidateFlags 验证命令行标志
func ValidateFlags(workers int, maxRetries int, timeout int, mode string) error {
	// 验证并发数
	if workers < 1 || workers > 64 {
		return fmt.Errorf("worker数必须在1-64之间,当前值: %d", workers)
	}

	// 验证重试次数
	if maxRetries < 0 || maxRetries > 20 {
		return fmt.Errorf("重试次数必须在0-20之间,当前值: %d", maxRetries)
	}

	// 验证超时
	if timeout < 1 || timeout > 600 {
		return fmt.Errorf("超时时间必须在1-600秒之间,当前值: %d", timeout)
	}

	// 验证模式
	validModes := map[string]bool{
		string(models.ModeDynamic): true,
		string(models.ModeStatic):  true,
	}
	if !validModes[mode] {
		return fmt.Errorf("无效的抓取模式: %s (有效值: dynamic, static)", mode)
	}

	return nil
}
