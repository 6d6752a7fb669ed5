package core

import (
	"fmt"
	"net/http"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 合并并校验抓取请求的HTTP头部
// 实现 models.HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部
	defaults http.Header

	// config 配置文件 headers 段
	config http.Header

	// cli 命令行 -H
	cli http.Header

	merged http.Header
}

// NewHeaderManager 创建头部管理器并立即校验
// 优先级: 默认 < 配置文件 < 命令行
func NewHeaderManager(userAgent string, configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults: getDefaultHeaders(userAgent),
		config:   make(http.Header),
	}

	for name, value := range configHeaders {
		hm.config.Set(name, value)
	}

	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}
	hm.cli = cli

	if err := hm.Validate(); err != nil {
		return nil, err
	}
	hm.merged = hm.merge()

	if len(hm.config)+len(hm.cli) > 0 {
		utils.Debugf("自定义HTTP头部: %v", utils.RedactHeaders(hm.merged))
	}
	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return http.Header{
		"User-Agent":      []string{userAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// Validate 按 默认 → 配置 → 命令行 的顺序验证头部
func (hm *HeaderManager) Validate() error {
	sources := []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"命令行", hm.cli},
	}
	for _, src := range sources {
		if err := utils.ValidateHeaders(src.headers); err != nil {
			return fmt.Errorf("%s头部验证失败: %w", src.name, err)
		}
	}
	return nil
}

func (hm *HeaderManager) merge() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 脱敏后的头部列表 (用于日志与报告)
func (hm *HeaderManager) GetSafeHeaders() []string {
	return utils.RedactHeaders(hm.merged)
}

// GetHeaders 实现 HeaderProvider 接口,返回合并后头部的副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	return hm.merged.Clone(), nil
}
