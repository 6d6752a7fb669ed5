package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/scopecrawl/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// errPagePoolClosed 标签页池已关闭
var errPagePoolClosed = errors.New("标签页池已关闭")

// 清理失败达到该次数的标签页被销毁
const maxCleanFailures = 2

// PagePool 标签页池管理器
// 职责: 复用浏览器标签页,标签页总数不超过 min(maxSize, 资源上限)
type PagePool struct {
	browser         *rod.Browser
	resourceMonitor *ResourceMonitor
	maxSize         int

	// 可用标签页
	available chan *rod.Page

	mu       sync.Mutex
	pages    map[*rod.Page]int // 标签页 -> 连续清理失败次数
	creating int               // 正在创建中的标签页数
	closed   bool
}

// NewPagePool 创建标签页池,maxSize通常等于worker数
func NewPagePool(browser *rod.Browser, resourceMonitor *ResourceMonitor, maxSize int) *PagePool {
	if maxSize < 1 {
		maxSize = 1
	}
	return &PagePool{
		browser:         browser,
		resourceMonitor: resourceMonitor,
		maxSize:         maxSize,
		available:       make(chan *rod.Page, maxSize),
		pages:           make(map[*rod.Page]int),
	}
}

// limit 当前允许的标签页数
func (pp *PagePool) limit() int {
	if pp.resourceMonitor == nil {
		return pp.maxSize
	}
	return min(pp.maxSize, pp.resourceMonitor.CalculateMaxTabs())
}

// AcquirePage 获取一个可用标签页,必要时创建,达到上限时阻塞等待
func (pp *PagePool) AcquirePage(ctx context.Context) (*rod.Page, error) {
	select {
	case page, ok := <-pp.available:
		if !ok {
			return nil, errPagePoolClosed
		}
		return page, nil
	default:
	}

	pp.mu.Lock()
	if pp.closed {
		pp.mu.Unlock()
		return nil, errPagePoolClosed
	}
	total := len(pp.pages) + pp.creating
	canCreate := total < pp.limit()
	reason := fmt.Sprintf("已达上限(%d)", total)
	if canCreate && total > 0 && pp.resourceMonitor != nil {
		// 第一个标签页总是允许创建
		canCreate, reason = pp.resourceMonitor.CheckResourceAvailability()
	}
	if canCreate {
		// 创建期间计入总数,防止并发创建超过上限
		pp.creating++
	}
	pp.mu.Unlock()

	if !canCreate {
		utils.Debugf("暂不创建新标签页: %s, 等待空闲标签页", reason)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case page, ok := <-pp.available:
			if !ok {
				return nil, errPagePoolClosed
			}
			return page, nil
		}
	}

	page, err := pp.browser.Page(proto.TargetCreateTarget{})

	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.creating--
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}
	if pp.closed {
		_ = page.Close()
		return nil, errPagePoolClosed
	}
	pp.pages[page] = 0
	utils.Debugf("创建新标签页,当前标签页数: %d", len(pp.pages))
	return page, nil
}

// ReleasePage 清理标签页状态后归还,连续清理失败的标签页被销毁
func (pp *PagePool) ReleasePage(page *rod.Page) {
	if page == nil {
		return
	}

	cleanErr := pp.cleanPage(page)

	pp.mu.Lock()
	failures, tracked := pp.pages[page]
	if !tracked || pp.closed {
		pp.mu.Unlock()
		_ = page.Close()
		return
	}
	if cleanErr != nil {
		failures++
		utils.Warnf("清理标签页状态失败 (第%d次): %v", failures, cleanErr)
	} else {
		failures = 0
	}
	if failures >= maxCleanFailures {
		pp.mu.Unlock()
		utils.Warnf("标签页清理连续失败%d次,销毁", failures)
		pp.destroyPage(page)
		return
	}
	pp.pages[page] = failures

	// 持锁发送,避免与Close关闭通道竞争
	select {
	case pp.available <- page:
		pp.mu.Unlock()
	default:
		delete(pp.pages, page)
		pp.mu.Unlock()
		_ = page.Close()
	}
}

// cleanPage 清理本地存储与cookie,避免页面之间互相影响
func (pp *PagePool) cleanPage(page *rod.Page) error {
	_, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			try { if (window.localStorage) localStorage.clear(); } catch (e) {}
			try { if (window.sessionStorage) sessionStorage.clear(); } catch (e) {}
			try {
				document.cookie.split(";").forEach(function (c) {
					var name = c.split("=")[0].trim();
					if (name) document.cookie = name + "=;expires=Thu, 01 Jan 1970 00:00:00 UTC;path=/";
				});
			} catch (e) {}
			return true;
		}`,
	})
	if err != nil {
		return fmt.Errorf("清理标签页状态失败: %w", err)
	}
	return nil
}

// destroyPage 关闭并移除标签页
func (pp *PagePool) destroyPage(page *rod.Page) {
	pp.mu.Lock()
	delete(pp.pages, page)
	pp.mu.Unlock()

	if err := page.Close(); err != nil {
		utils.Debugf("关闭标签页失败: %v", err)
	}
}

// CurrentSize 当前标签页数
func (pp *PagePool) CurrentSize() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.pages)
}

// Close 关闭全部标签页
func (pp *PagePool) Close() error {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return nil
	}
	pp.closed = true

	for page := range pp.pages {
		if err := page.Close(); err != nil {
			utils.Debugf("关闭标签页失败: %v", err)
		}
	}
	pp.pages = make(map[*rod.Page]int)
	close(pp.available)

	utils.Debug("标签页池已关闭")
	return nil
}
