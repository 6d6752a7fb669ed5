package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

// MaxHeaderValueLength HTTP头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)

	// 由HTTP客户端或浏览器自行管理的头部
	forbiddenHeaders = map[string]bool{
		"host":              true,
		"content-length":    true,
		"transfer-encoding": true,
		"connection":        true,
	}

	// 名称包含这些关键字的头部在日志中脱敏
	sensitiveKeywords = []string{"authorization", "cookie", "token", "key", "secret", "password", "credential"}
)

// ValidateHeader 校验单个头部
func ValidateHeader(name, value string) error {
	switch {
	case forbiddenHeaders[strings.ToLower(name)]:
		return &models.ValidationError{
			HeaderName: name,
			Reason:     "此头部由HTTP客户端自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	case name == "":
		return &models.ValidationError{HeaderName: name, Reason: "头部名称不能为空"}
	case !headerNamePattern.MatchString(name):
		return &models.ValidationError{
			HeaderName: name,
			Reason:     "头部名称包含非法字符 (仅允许字母、数字和连字符)",
		}
	case len(value) > MaxHeaderValueLength:
		return &models.ValidationError{
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	case !headerValuePattern.MatchString(value):
		return &models.ValidationError{
			HeaderName: name,
			Reason:     "头部值包含非法字符 (仅允许可打印ASCII字符)",
			Suggestion: "移除控制字符和非ASCII字符",
		}
	}
	return nil
}

// ValidateHeaders 校验全部头部,返回第一个错误
func ValidateHeaders(headers http.Header) error {
	for name, values := range headers {
		for _, value := range values {
			if err := ValidateHeader(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsSensitiveHeader 头部是否需要脱敏
func IsSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RedactHeaderValue 脱敏单个值
func RedactHeaderValue(name, value string) string {
	if !IsSensitiveHeader(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// RedactHeaders 返回可安全写入日志的 "Name: value" 列表,按名称排序
func RedactHeaders(headers http.Header) []string {
	lines := make([]string, 0, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		lines = append(lines, name+": "+RedactHeaderValue(name, values[0]))
	}
	sort.Strings(lines)
	return lines
}
