package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
	"golang.org/x/sync/errgroup"
)

// PageExtractor 文本与链接提取能力
type PageExtractor interface {
	ExtractText(html string) (string, error)
	ExtractLinks(html string, baseURL string) ([]string, error)
}

// ContentSink 页面文本的存储目标
type ContentSink interface {
	Store(ctx context.Context, pageURL string, text string) error
}

// StateSaver 检查点写入
type StateSaver interface {
	Save(ctx context.Context, state models.FrontierState) error
}

// PoolConfig worker池配置
type PoolConfig struct {
	Workers  int           // 并发worker数,即同时进行的抓取上限
	Retry    RetryPolicy   // 超时重试策略
	MinDelay time.Duration // 两次抓取之间的随机等待下限
	MaxDelay time.Duration // 两次抓取之间的随机等待上限
}

// WorkerPool 固定数量的worker从Frontier拉取URL,执行抓取-提取-存储-检查点循环
type WorkerPool struct {
	frontier  *Frontier
	fetcher   Fetcher
	extractor PageExtractor
	scope     Scope
	sink      ContentSink
	saver     StateSaver
	config    PoolConfig

	// 同一时间只有一个检查点写入
	saveMu sync.Mutex

	mu     sync.Mutex
	stats  models.TaskStats
	failed []models.FailedPageInfo
	onPage func(task *models.CrawlTask)
}

// NewWorkerPool 创建worker池
func NewWorkerPool(frontier *Frontier, fetcher Fetcher, extractor PageExtractor, scope Scope,
	sink ContentSink, saver StateSaver, config PoolConfig) *WorkerPool {
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &WorkerPool{
		frontier:  frontier,
		fetcher:   fetcher,
		extractor: extractor,
		scope:     scope,
		sink:      sink,
		saver:     saver,
		config:    config,
	}
}

// OnPage 注册每个URL处理结束后的回调(进度条等)
func (p *WorkerPool) OnPage(fn func(task *models.CrawlTask)) {
	p.onPage = fn
}

// Run 启动全部worker,直到Frontier耗尽或ctx被取消
// 取消后不再出队,进行中的抓取完成当前尝试后退出
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			p.worker(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

// worker 单个worker循环
func (p *WorkerPool) worker(ctx context.Context, workerID int) {
	for {
		if ctx.Err() != nil {
			utils.Debugf("Worker %d 收到关闭信号,退出", workerID)
			return
		}

		// 先取通知channel再出队,避免错过其他worker的入队
		changed := p.frontier.Changed()
		pageURL, ok := p.frontier.Dequeue()
		if !ok {
			if p.frontier.IsDrained() {
				utils.Debugf("Worker %d 队列已耗尽,退出", workerID)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-changed:
				continue
			}
		}

		task := p.process(ctx, workerID, pageURL)
		p.checkpoint(ctx)

		if task.Outcome == models.OutcomeInterrupted || p.frontier.IsDrained() {
			continue
		}
		if err := Sleep(ctx, RandomDelay(p.config.MinDelay, p.config.MaxDelay)); err != nil {
			return
		}
	}
}

// process 抓取并处理单个URL,失败只影响当前URL
func (p *WorkerPool) process(ctx context.Context, workerID int, pageURL string) (task *models.CrawlTask) {
	task = models.NewCrawlTask(pageURL)
	utils.Debugf("Worker %d 抓取: %s", workerID, pageURL)

	defer func() {
		if r := recover(); r != nil {
			utils.Errorf("Worker %d 捕获panic: URL=%s, 错误=%v", workerID, pageURL, r)
			task.Finish(models.OutcomeFailed, fmt.Errorf("页面处理panic: %v", r))
		}
		p.settle(task)
	}()

	var html string
	attempts, err := p.config.Retry.Do(ctx, func(attemptCtx context.Context) error {
		var fetchErr error
		html, fetchErr = p.fetcher.Fetch(attemptCtx, pageURL)
		return fetchErr
	})
	task.Attempts = attempts

	switch {
	case errors.Is(err, ErrInterrupted):
		utils.Infof("⏸️ 抓取被中断,放回队列: %s", pageURL)
		task.Finish(models.OutcomeInterrupted, err)
		return task
	case errors.Is(err, ErrRetriesExhausted):
		utils.Warnf("超时重试耗尽,丢弃 [%s]: %v", pageURL, err)
		task.Finish(models.OutcomeTimedOut, err)
		return task
	case err != nil:
		utils.Warnf("抓取失败,丢弃 [%s]: %v", pageURL, err)
		task.Finish(models.OutcomeFailed, err)
		return task
	}

	p.handlePage(ctx, pageURL, html)
	task.Finish(models.OutcomeSucceeded, nil)
	return task
}

// handlePage 保存文本并把范围内的新链接加入Frontier
// 文本与链接互不影响,任一失败只记录日志
func (p *WorkerPool) handlePage(ctx context.Context, pageURL, html string) {
	text, err := p.extractor.ExtractText(html)
	switch {
	case err != nil:
		utils.Warnf("提取文本失败 [%s]: %v", pageURL, err)
	case p.sink != nil:
		if err := p.sink.Store(context.WithoutCancel(ctx), pageURL, text); err != nil {
			utils.Warnf("保存文本失败 [%s]: %v", pageURL, err)
			p.mu.Lock()
			p.stats.SinkErrors++
			p.mu.Unlock()
		} else {
			p.mu.Lock()
			p.stats.TextBytes += int64(len(text))
			p.mu.Unlock()
		}
	}

	links, err := p.extractor.ExtractLinks(html, pageURL)
	if err != nil {
		utils.Warnf("提取链接失败 [%s]: %v", pageURL, err)
		return
	}

	admitted := 0
	for _, link := range links {
		if !p.scope.Allows(link) {
			continue
		}
		if p.frontier.EnqueueIfNew(link) {
			admitted++
		}
	}
	if admitted > 0 {
		utils.Debugf("从页面发现 %d 个新链接: %s (待处理: %d)", admitted, pageURL, p.frontier.PendingCount())
	}

	p.mu.Lock()
	p.stats.Discovered += admitted
	p.mu.Unlock()
}

// settle 根据结果更新Frontier与统计
func (p *WorkerPool) settle(task *models.CrawlTask) {
	if task.Outcome.Settled() {
		p.frontier.MarkVisited(task.URL)
	} else {
		p.frontier.Requeue(task.URL)
	}

	p.mu.Lock()
	p.stats.Record(task)
	if task.Outcome == models.OutcomeTimedOut || task.Outcome == models.OutcomeFailed {
		p.failed = append(p.failed, models.FailedPageInfo{
			URL:      task.URL,
			Outcome:  task.Outcome,
			ErrorMsg: task.Error,
			Attempts: task.Attempts,
		})
	}
	p.mu.Unlock()

	if p.onPage != nil {
		p.onPage(task)
	}
}

// checkpoint 写入检查点,失败只记录日志
func (p *WorkerPool) checkpoint(ctx context.Context) {
	if err := p.SaveCheckpoint(ctx); err != nil {
		utils.Errorf("写入检查点失败: %v", err)
		p.mu.Lock()
		p.stats.SaveErrors++
		p.mu.Unlock()
	}
}

// SaveCheckpoint 保存当前Frontier快照
// 快照在Frontier锁内生成,写入在锁外进行;写入不受ctx取消影响
func (p *WorkerPool) SaveCheckpoint(ctx context.Context) error {
	if p.saver == nil {
		return nil
	}
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	state := p.frontier.Snapshot()
	return p.saver.Save(context.WithoutCancel(ctx), state)
}

// Stats 统计快照
func (p *WorkerPool) Stats() models.TaskStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// FailedPages 被丢弃的URL
func (p *WorkerPool) FailedPages() []models.FailedPageInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.FailedPageInfo, len(p.failed))
	copy(out, p.failed)
	return out
}
