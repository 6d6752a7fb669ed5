package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderProvider 提供抓取请求使用的HTTP头部
// 返回的头部已按优先级合并: 默认 < 配置文件 < 命令行
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// CliHeaders 命令行 -H 传入的头部,每项格式为 "Name: Value"
type CliHeaders []string

// Parse 解析为 http.Header
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 缺少冒号,应为 'Name: Value'", i+1)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 头部名称不能为空", i+1)
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// ValidationError 头部验证错误
type ValidationError struct {
	HeaderName string
	Reason     string
	Suggestion string // 可选
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}

// ConfigError 配置文件错误
type ConfigError struct {
	FilePath string
	Cause    error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}
