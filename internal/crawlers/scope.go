package crawlers

import (
	"fmt"
	"net/url"
	"strings"
)

// InScope 判断候选URL是否在爬取范围内
// 主机名必须与domain完全相等,路径只需包含pathPrefix子串
func InScope(candidateURL, domain, pathPrefix string) bool {
	parsed, err := url.Parse(candidateURL)
	if err != nil {
		return false
	}
	return parsed.Host == domain && strings.Contains(parsed.Path, pathPrefix)
}

// Scope 爬取范围
type Scope struct {
	Scheme     string
	Domain     string
	PathPrefix string

	// StrictPrefix 为true时路径必须以PathPrefix开头,
	// 避免 /path 匹配到 /a/path/b
	StrictPrefix bool
}

// ScopeFromURL 以种子URL的主机名和路径作为范围
func ScopeFromURL(seed string) (Scope, error) {
	parsed, err := url.Parse(seed)
	if err != nil {
		return Scope{}, fmt.Errorf("解析种子URL失败: %w", err)
	}
	if parsed.Host == "" {
		return Scope{}, fmt.Errorf("种子URL缺少主机名: %s", seed)
	}
	return Scope{Scheme: parsed.Scheme, Domain: parsed.Host, PathPrefix: parsed.Path}, nil
}

// Allows 判断链接是否可以入队
func (s Scope) Allows(candidateURL string) bool {
	if !s.StrictPrefix {
		return InScope(candidateURL, s.Domain, s.PathPrefix)
	}
	parsed, err := url.Parse(candidateURL)
	if err != nil {
		return false
	}
	return parsed.Host == s.Domain && strings.HasPrefix(parsed.Path, s.PathPrefix)
}

// String 用于日志
func (s Scope) String() string {
	mode := "包含"
	if s.StrictPrefix {
		mode = "前缀"
	}
	return fmt.Sprintf("%s%s (%s匹配)", s.Domain, s.PathPrefix, mode)
}
