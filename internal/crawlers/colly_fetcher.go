package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
)

// CollyConfig 静态抓取器配置
type CollyConfig struct {
	UserAgent string
	Timeout   time.Duration // 单次请求超时
}

// CollyFetcher 不执行JavaScript的静态抓取器
type CollyFetcher struct {
	collector      *colly.Collector
	headerProvider models.HeaderProvider
}

// NewCollyFetcher 创建静态抓取器
// 允许重复访问同一URL,重试与去重由上层负责
func NewCollyFetcher(config CollyConfig, headerProvider models.HeaderProvider) *CollyFetcher {
	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if config.UserAgent != "" {
		options = append(options, colly.UserAgent(config.UserAgent))
	}
	c := colly.NewCollector(options...)

	// 跳过证书验证,允许访问自签名、过期或主机名不匹配的HTTPS站点
	c.WithTransport(&http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	})
	utils.Debugf("静态抓取器: TLS证书验证已禁用,适用于内网/开发环境的自签名证书")

	if config.Timeout > 0 {
		c.SetRequestTimeout(config.Timeout)
	}

	return &CollyFetcher{collector: c, headerProvider: headerProvider}
}

// Fetch 请求页面并返回解码后的HTML
// HTTP错误状态立即失败;请求超时返回ErrFetchTimeout
func (cf *CollyFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	// 每次抓取使用独立的克隆,回调互不干扰,共享底层HTTP客户端
	c := cf.collector.Clone()
	c.Context = ctx

	var (
		body    []byte
		decoded bool
	)

	c.OnRequest(func(r *colly.Request) {
		if cf.headerProvider == nil {
			return
		}
		headers, err := cf.headerProvider.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	var decodeErr error
	c.OnResponse(func(r *colly.Response) {
		body, decodeErr = decodeBody(r.Headers.Get("Content-Encoding"), r.Body)
		decoded = true
	})

	if err := c.Visit(pageURL); err != nil {
		if IsTimeout(err) {
			return "", fmt.Errorf("%w: %w", ErrFetchTimeout, err)
		}
		return "", fmt.Errorf("请求失败: %w", err)
	}
	if !decoded {
		return "", fmt.Errorf("请求失败: 未收到响应")
	}
	if decodeErr != nil {
		return "", decodeErr
	}
	return string(body), nil
}

// Close 静态抓取器无需释放资源
func (cf *CollyFetcher) Close() error {
	return nil
}

// decodeBody 根据Content-Encoding解码响应体
// gzip通常已被HTTP客户端透明解压,只有仍带gzip魔数时才解压
func decodeBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip", "x-gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}

// headerPairs 将头部展开为 [name, value, name, value...],按名称排序
func headerPairs(headers http.Header) []string {
	names := make([]string, 0, len(headers))
	for name, values := range headers {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names)*2)
	for _, name := range names {
		pairs = append(pairs, name, headers[name][0])
	}
	return pairs
}
