package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodConfig 浏览器抓取器配置
type RodConfig struct {
	Headless         bool
	UserAgent        string
	ReadMoreSelector string        // 为空时不点击
	ClickPause       time.Duration // 每次点击后的等待
	MaxTabs          int           // 标签页上限,通常等于worker数
	Resource         ResourceMonitorConfig
}

// RodFetcher 使用无头浏览器渲染页面
// 职责: 导航、等待网络空闲、展开"阅读更多"、返回渲染后的HTML
type RodFetcher struct {
	browser         *rod.Browser
	pagePool        *PagePool
	resourceMonitor *ResourceMonitor
	config          RodConfig
	headerProvider  models.HeaderProvider
}

// NewRodFetcher 启动浏览器并创建标签页池
func NewRodFetcher(config RodConfig, headerProvider models.HeaderProvider) (*RodFetcher, error) {
	l := launcher.New().Headless(config.Headless)

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")
	utils.Debugf("浏览器启动参数: --ignore-certificate-errors (跳过TLS证书验证)")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已启动: %s", controlURL)
	utils.Warnf("浏览器已配置为跳过HTTPS证书验证,适用于内网/开发环境的自签名证书")

	monitor := NewResourceMonitor(config.Resource)
	monitor.StartMonitoring(time.Second)

	return &RodFetcher{
		browser:         browser,
		pagePool:        NewPagePool(browser, monitor, config.MaxTabs),
		resourceMonitor: monitor,
		config:          config,
		headerProvider:  headerProvider,
	}, nil
}

// Fetch 渲染页面并返回HTML,ctx到期时返回ErrFetchTimeout
func (rf *RodFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	page, err := rf.pagePool.AcquirePage(ctx)
	if err != nil {
		return "", mapRodError(fmt.Errorf("获取标签页失败: %w", err))
	}
	defer rf.pagePool.ReleasePage(page)

	html, err := rf.render(page.Context(ctx), pageURL)
	if err != nil {
		return "", mapRodError(err)
	}
	return html, nil
}

func (rf *RodFetcher) render(page *rod.Page, pageURL string) (string, error) {
	if rf.config.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: rf.config.UserAgent}); err != nil {
			return "", fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	if rf.headerProvider != nil {
		headers, err := rf.headerProvider.GetHeaders()
		if err != nil {
			utils.Warnf("获取HTTP头部失败: %v", err)
		} else if pairs := headerPairs(headers); len(pairs) > 0 {
			cleanup, err := page.SetExtraHeaders(pairs)
			if err != nil {
				return "", fmt.Errorf("设置HTTP头部失败: %w", err)
			}
			defer cleanup()
		}
	}

	wait := page.WaitNavigation(proto.PageLifecycleEventNameNetworkIdle)
	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("导航失败: %w", err)
	}
	wait()

	if _, err := page.Element("body"); err != nil {
		return "", fmt.Errorf("等待页面主体失败: %w", err)
	}

	rf.expandReadMore(page, pageURL)

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("获取页面HTML失败: %w", err)
	}
	return html, nil
}

// expandReadMore 依次点击"阅读更多"元素,失败的点击只记录日志
func (rf *RodFetcher) expandReadMore(page *rod.Page, pageURL string) {
	if rf.config.ReadMoreSelector == "" {
		return
	}
	has, _, err := page.Has(rf.config.ReadMoreSelector)
	if err != nil || !has {
		return
	}
	elements, err := page.Elements(rf.config.ReadMoreSelector)
	if err != nil {
		return
	}

	clicked := 0
	for _, el := range elements {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			utils.Debugf("点击展开元素失败 [%s]: %v", pageURL, err)
			continue
		}
		clicked++
		if err := Sleep(page.GetContext(), rf.config.ClickPause); err != nil {
			return
		}
	}
	if clicked > 0 {
		utils.Debugf("展开了 %d 个折叠内容: %s", clicked, pageURL)
	}
}

// Close 关闭标签页池、停止资源监控并关闭浏览器
func (rf *RodFetcher) Close() error {
	rf.resourceMonitor.StopMonitoring()
	_ = rf.pagePool.Close()
	if err := rf.browser.Close(); err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	utils.Debug("浏览器已关闭")
	return nil
}

// mapRodError 将ctx超时统一为ErrFetchTimeout
func mapRodError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrFetchTimeout, err)
	}
	return err
}
