package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/scopecrawl/internal/checkpoint"
	"github.com/RecoveryAshes/scopecrawl/internal/crawlers"
	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/sink"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
)

// Crawler 主爬取器协调器
// 负责组装 Frontier、检查点、抓取器、存储与worker池,并在结束时写入最终检查点
type Crawler struct {
	config *Config
	seeds  []string

	// HTTP头部提供者
	headerProvider models.HeaderProvider

	// 可注入的组件,为空时按配置创建
	fetcher crawlers.Fetcher
	store   checkpoint.Store
	sink    sink.Sink

	frontier *crawlers.Frontier
	pool     *crawlers.WorkerPool
}

// Option 覆盖默认组件
type Option func(*Crawler)

// WithFetcher 使用指定的抓取器
func WithFetcher(f crawlers.Fetcher) Option {
	return func(c *Crawler) { c.fetcher = f }
}

// WithStore 使用指定的检查点存储
func WithStore(s checkpoint.Store) Option {
	return func(c *Crawler) { c.store = s }
}

// WithSink 使用指定的文本存储
func WithSink(s sink.Sink) Option {
	return func(c *Crawler) { c.sink = s }
}

// NewCrawler 创建主爬取器
// 爬取范围为空时取自第一个种子URL
func NewCrawler(config *Config, seeds []string, headerProvider models.HeaderProvider, opts ...Option) (*Crawler, error) {
	if config == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	for _, seed := range seeds {
		if err := models.ValidateURL(seed); err != nil {
			return nil, fmt.Errorf("种子URL无效 [%s]: %w", seed, err)
		}
	}
	if err := config.ResolveScope(seeds); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Crawler{
		config:         config,
		seeds:          seeds,
		headerProvider: headerProvider,
		frontier:       crawlers.NewFrontier(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Scope 当前爬取范围
func (c *Crawler) Scope() crawlers.Scope {
	return crawlers.Scope{
		Scheme:       c.config.Crawl.Scheme,
		Domain:       c.config.Crawl.Domain,
		PathPrefix:   c.config.Crawl.PathPrefix,
		StrictPrefix: c.config.Crawl.StrictPrefix,
	}
}

// Crawl 执行爬取任务
// 执行流程:
//  1. 加载检查点 (损坏时直接返回错误)
//  2. 恢复Frontier并加入种子URL
//  3. 运行worker池直到队列耗尽或ctx被取消
//  4. 写入最终检查点
//  5. 生成爬取报告
//
// ctx被取消属于正常结束,返回的报告 Interrupted 为 true
func (c *Crawler) Crawl(ctx context.Context) (report *models.CrawlReport, err error) {
	startTime := time.Now()
	scope := c.Scope()

	utils.Infof("🚀 开始爬取任务")
	utils.Infof("爬取范围: %s", scope)
	utils.Infof("爬取模式: %s, worker数: %d", c.config.Crawl.Mode, c.config.Crawl.Workers)

	defer func() {
		if closeErr := c.close(); closeErr != nil {
			utils.Warnf("释放资源失败: %v", closeErr)
		}
	}()

	if c.store == nil {
		if c.store, err = checkpoint.Open(c.config.Checkpoint.Options()); err != nil {
			return nil, fmt.Errorf("打开检查点存储失败: %w", err)
		}
	}

	state, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载检查点失败: %w", err)
	}
	c.frontier.Restore(state)
	if !state.IsEmpty() {
		utils.Infof("♻️ 从检查点恢复: 待处理 %d, 已处理 %d", len(state.Pending), len(state.Visited))
	}

	seeded := 0
	for _, seed := range c.seeds {
		if !scope.Allows(seed) {
			utils.Warnf("种子URL不在爬取范围内: %s", seed)
		}
		if c.frontier.EnqueueIfNew(seed) {
			seeded++
		}
	}
	utils.Infof("新加入种子URL: %d, 当前待处理: %d", seeded, c.frontier.PendingCount())

	if c.frontier.IsDrained() {
		utils.Infof("✅ 没有待处理的URL")
	}

	if c.sink == nil {
		if c.sink, err = newSink(c.config); err != nil {
			return nil, err
		}
	}
	if c.fetcher == nil && !c.frontier.IsDrained() {
		if c.fetcher, err = newFetcher(c.config, c.headerProvider); err != nil {
			return nil, err
		}
	}

	minDelay, maxDelay := c.config.Crawl.DelayRange()
	var contentSink crawlers.ContentSink
	if c.sink != nil {
		contentSink = c.sink
	}
	c.pool = crawlers.NewWorkerPool(c.frontier, c.fetcher, crawlers.NewExtractor(), scope, contentSink, c.store,
		crawlers.PoolConfig{
			Workers: c.config.Crawl.Workers,
			Retry: crawlers.RetryPolicy{
				MaxRetries: c.config.Crawl.MaxRetries,
				Timeout:    c.config.Crawl.AttemptTimeout(),
				MinDelay:   minDelay,
				MaxDelay:   maxDelay,
			},
			MinDelay: minDelay,
			MaxDelay: maxDelay,
		})

	if c.config.Output.Progress && !c.frontier.IsDrained() {
		bar := utils.NewProgressBar(-1, "抓取页面")
		c.pool.OnPage(func(task *models.CrawlTask) {
			_ = bar.Add(1)
		})
		defer func() { _ = bar.Finish() }()
	}

	if !c.frontier.IsDrained() {
		if err := c.pool.Run(ctx); err != nil {
			utils.Errorf("worker池异常退出: %v", err)
		}
	}

	interrupted := ctx.Err() != nil
	if interrupted {
		utils.Infof("⏹️ 收到关闭信号,保存最终检查点")
	}

	// 最终检查点不受取消影响
	saveErr := c.pool.SaveCheckpoint(context.WithoutCancel(ctx))
	if saveErr != nil {
		utils.Errorf("写入最终检查点失败: %v", saveErr)
	}

	report = c.buildReport(startTime, interrupted)
	reporter := utils.NewReporter(c.config.Output.ReportDir)
	if err := reporter.GenerateReport(report); err != nil {
		utils.Warnf("生成报告失败: %v", err)
	}

	utils.Infof("✅ 爬取任务结束: 成功 %d, 超时 %d, 失败 %d, 剩余 %d",
		report.Stats.Succeeded, report.Stats.TimedOut, report.Stats.Failed, report.PendingCount)
	utils.Infof("总耗时: %.2f秒", report.Duration)

	if saveErr != nil {
		return report, fmt.Errorf("写入最终检查点失败: %w", saveErr)
	}
	return report, nil
}

// buildReport 汇总运行结果
func (c *Crawler) buildReport(startTime time.Time, interrupted bool) *models.CrawlReport {
	endTime := time.Now()
	stats := c.pool.Stats()
	stats.Duration = endTime.Sub(startTime).Seconds()

	snapshot := c.frontier.Snapshot()
	return &models.CrawlReport{
		RunID:              models.NewRunID(),
		Seeds:              c.seeds,
		Domain:             c.config.Crawl.Domain,
		PathPrefix:         c.config.Crawl.PathPrefix,
		Mode:               c.config.Crawl.Mode,
		StartTime:          startTime,
		EndTime:            endTime,
		Duration:           stats.Duration,
		Interrupted:        interrupted,
		PendingCount:       len(snapshot.Pending),
		VisitedCount:       len(snapshot.Visited),
		Stats:              stats,
		FailedPages:        c.pool.FailedPages(),
		CheckpointLocation: storeLocation(c.store),
		Config:             c.config.Crawl,
	}
}

// close 依次关闭抓取器、存储与检查点
func (c *Crawler) close() error {
	var errs []error
	if c.fetcher != nil {
		if err := c.fetcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭抓取器: %w", err))
		}
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭文本存储: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭检查点存储: %w", err))
		}
	}
	return errors.Join(errs...)
}

// newFetcher 按模式创建抓取器
func newFetcher(config *Config, headerProvider models.HeaderProvider) (crawlers.Fetcher, error) {
	switch config.Crawl.Mode {
	case models.ModeStatic:
		return crawlers.NewCollyFetcher(crawlers.CollyConfig{
			UserAgent: config.Crawl.UserAgent,
			Timeout:   config.Crawl.AttemptTimeout(),
		}, headerProvider), nil
	case models.ModeDynamic:
		f, err := crawlers.NewRodFetcher(crawlers.RodConfig{
			Headless:         config.Crawl.Headless,
			UserAgent:        config.Crawl.UserAgent,
			ReadMoreSelector: config.Crawl.ReadMoreSelector,
			ClickPause:       config.ClickPauseDuration(),
			MaxTabs:          config.Crawl.Workers,
			Resource:         crawlers.ResourceMonitorConfigFrom(config.Resource),
		}, headerProvider)
		if err != nil {
			return nil, fmt.Errorf("启动浏览器失败: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("无效的爬取模式: %s", config.Crawl.Mode)
	}
}

// newSink 按配置组合文本存储,全部未启用时返回nil
func newSink(config *Config) (sink.Sink, error) {
	var sinks sink.Multi
	fail := func(err error) (sink.Sink, error) {
		_ = sinks.Close()
		return nil, err
	}

	if config.Sink.File.Enabled {
		fs, err := sink.NewFileSink(config.FileSinkDir(), config.Crawl.Scheme, config.Crawl.Domain, config.Crawl.PathPrefix)
		if err != nil {
			return fail(fmt.Errorf("创建文件存储失败: %w", err))
		}
		utils.Infof("文本输出目录: %s", config.FileSinkDir())
		sinks = append(sinks, fs)
	}
	if config.Sink.SQLite.Enabled {
		ss, err := sink.NewSQLiteSink(config.Sink.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("创建SQLite存储失败: %w", err))
		}
		sinks = append(sinks, ss)
	}
	if config.Sink.Kafka.Enabled {
		ks, err := sink.NewKafkaSink(config.Sink.Kafka.Brokers, config.Sink.Kafka.Topic)
		if err != nil {
			return fail(fmt.Errorf("创建Kafka存储失败: %w", err))
		}
		sinks = append(sinks, ks)
	}

	switch len(sinks) {
	case 0:
		utils.Warnf("未启用任何文本存储,页面文本将被丢弃")
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		return sinks, nil
	}
}

// storeLocation 检查点位置描述
func storeLocation(store checkpoint.Store) string {
	if l, ok := store.(interface{ Location() string }); ok {
		return l.Location()
	}
	return ""
}

// InspectCheckpoint 读取检查点内容,不修改任何状态
func InspectCheckpoint(ctx context.Context, config *Config) (models.FrontierState, string, error) {
	store, err := checkpoint.Open(config.Checkpoint.Options())
	if err != nil {
		return models.FrontierState{}, "", err
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		return models.FrontierState{}, storeLocation(store), err
	}
	return state, storeLocation(store), nil
}
