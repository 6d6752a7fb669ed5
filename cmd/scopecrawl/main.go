package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/scopecrawl/internal/core"
	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 爬取参数
	seedURLs      []string
	urlFile       string
	domain        string
	pathPrefix    string
	strictPrefix  bool
	workers       int
	maxRetries    int
	timeout       int
	mode          string
	headless      bool
	checkpointDir string
	redisAddr     string
	noProgress    bool
)

// appConfig 在 PersistentPreRunE 中加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "scopecrawl",
	Short: "限定范围、可中断续爬的网页文本爬取工具",
	Long: `scopecrawl - 限定范围、可中断续爬的网页文本爬取工具

从种子URL出发,只跟随同一主机且路径包含指定关键字的链接,
保存每个页面的可见文本。支持:
  • 浏览器渲染 (dynamic) 与纯HTTP (static) 两种模式
  • 超时自动重试,其他错误直接跳过
  • 每处理一个页面写入检查点,Ctrl+C 后可从断点继续
  • 文件 / SQLite / Kafka 多种文本存储
  • 自定义HTTP请求头

示例:
  scopecrawl -u https://docs.example.com/guide/
  scopecrawl -u https://docs.example.com/guide/ -w 8 --mode static
  scopecrawl -f seeds.txt -H "Authorization: Bearer token"
  scopecrawl state

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		applyFlagOverrides(cmd, config)

		// 初始化日志系统,命令行参数覆盖配置文件
		logConfig := config.Logging.LogConfig()
		if logLevel != "" {
			logConfig.Level = logLevel
		} else if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: runCrawl,
}

func runCrawl(cmd *cobra.Command, args []string) error {
	headerManager, err := core.NewHeaderManager(appConfig.Crawl.UserAgent, appConfig.Headers, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}

	if validateConfig {
		return printValidation(headerManager)
	}

	seeds, err := collectSeeds(seedURLs, urlFile)
	if err != nil {
		return err
	}
	if len(seeds) == 0 && (appConfig.Crawl.Domain == "" || appConfig.Crawl.PathPrefix == "") {
		return cmd.Help()
	}

	if err := ValidateFlags(workers, maxRetries, timeout, mode); err != nil {
		return err
	}

	crawler, err := core.NewCrawler(appConfig, seeds, headerManager)
	if err != nil {
		return fmt.Errorf("创建爬取器失败: %w", err)
	}

	// Ctrl+C 与 SIGTERM 触发优雅关闭: 停止派发新URL,保存检查点后正常退出
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	stopNotice := context.AfterFunc(ctx, func() {
		utils.Warnf("收到中断信号, 等待进行中的页面完成后退出...")
	})
	defer stopNotice()

	report, err := crawler.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("爬取失败: %w", err)
	}

	printSummary(report)
	if report.Interrupted {
		utils.Infof("⏸️ 爬取已中断, 再次运行相同命令即可继续 (剩余 %d 个URL)", report.PendingCount)
		return nil
	}
	utils.Info("✨ 爬取任务完成!")
	return nil
}

// applyFlagOverrides 显式指定的命令行参数覆盖配置文件
func applyFlagOverrides(cmd *cobra.Command, config *core.Config) {
	flags := cmd.Flags()
	if flags.Changed("domain") {
		config.Crawl.Domain = domain
	}
	if flags.Changed("path-prefix") {
		config.Crawl.PathPrefix = pathPrefix
	}
	if flags.Changed("strict-prefix") {
		config.Crawl.StrictPrefix = strictPrefix
	}
	if flags.Changed("workers") {
		config.Crawl.Workers = workers
	} else {
		workers = config.Crawl.Workers
	}
	if flags.Changed("retries") {
		config.Crawl.MaxRetries = maxRetries
	} else {
		maxRetries = config.Crawl.MaxRetries
	}
	if flags.Changed("timeout") {
		config.Crawl.Timeout = timeout
	} else {
		timeout = config.Crawl.Timeout
	}
	if flags.Changed("mode") {
		config.Crawl.Mode = models.CrawlMode(mode)
	} else {
		mode = string(config.Crawl.Mode)
	}
	if flags.Changed("headless") {
		config.Crawl.Headless = headless
	}
	if flags.Changed("checkpoint-dir") {
		config.Checkpoint.Dir = checkpointDir
	}
	if flags.Changed("redis") {
		config.Checkpoint.Backend = "redis"
		config.Checkpoint.RedisAddr = redisAddr
	}
	if flags.Changed("no-progress") {
		config.Output.Progress = !noProgress
	}
}

// collectSeeds 合并 -u 与 -f 的种子URL
func collectSeeds(urls []string, file string) ([]string, error) {
	for _, u := range urls {
		if err := ValidateURL(u); err != nil {
			return nil, fmt.Errorf("无效的种子URL [%s]: %w", u, err)
		}
	}
	var fromFile []string
	if file != "" {
		var err error
		if fromFile, err = utils.ReadURLsFromFile(file); err != nil {
			return nil, fmt.Errorf("读取URL文件失败: %w", err)
		}
	}
	return utils.MergeSeeds(urls, fromFile), nil
}

func printValidation(headerManager *core.HeaderManager) error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	utils.Info("✅ 配置验证通过!")
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for _, line := range safeHeaders {
		utils.Infof("  %s", line)
	}
	return nil
}

func printSummary(report *models.CrawlReport) {
	stats := report.Stats
	fmt.Println("\n==================================================")
	fmt.Println("📊 爬取统计")
	fmt.Println("==================================================")
	fmt.Printf("🔗 爬取范围: %s%s\n", report.Domain, report.PathPrefix)
	fmt.Printf("✅ 成功页面: %d\n", stats.Succeeded)
	fmt.Printf("⏱️  超时丢弃: %d\n", stats.TimedOut)
	fmt.Printf("❌ 失败丢弃: %d\n", stats.Failed)
	fmt.Printf("➕ 新发现链接: %d\n", stats.Discovered)
	fmt.Printf("📦 文本大小: %.2f MB\n", float64(stats.TextBytes)/(1024*1024))
	fmt.Printf("📌 累计已处理: %d, 剩余: %d\n", report.VisitedCount, report.PendingCount)
	fmt.Printf("⏱️  总耗时: %.2f秒\n", stats.Duration)
	fmt.Println("==================================================")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "显示检查点内容",
	RunE: func(cmd *cobra.Command, args []string) error {
		state, location, err := core.InspectCheckpoint(cmd.Context(), appConfig)
		if err != nil {
			return fmt.Errorf("读取检查点失败: %w", err)
		}

		fmt.Printf("检查点: %s\n", location)
		fmt.Printf("待处理: %d\n", len(state.Pending))
		fmt.Printf("已处理: %d\n", len(state.Visited))
		for i, u := range queueHead(state.Pending, stateHead) {
			fmt.Printf("  %d. %s\n", i+1, u)
		}
		return nil
	},
}

var stateHead int

// queueHead 队列前n项
func queueHead(pending []string, n int) []string {
	if n < 0 || n > len(pending) {
		n = len(pending)
	}
	return pending[:n]
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scopecrawl %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&checkpointDir, "checkpoint-dir", "", "检查点目录")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "使用Redis保存检查点 (host:port)")

	// HTTP头部参数
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 爬取参数
	rootCmd.Flags().StringArrayVarP(&seedURLs, "url", "u", nil, "种子URL,可多次指定")
	rootCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含种子URL列表的文件路径")
	rootCmd.Flags().StringVar(&domain, "domain", "", "允许的主机名 (默认取第一个种子)")
	rootCmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "路径关键字 (默认取第一个种子的路径)")
	rootCmd.Flags().BoolVar(&strictPrefix, "strict-prefix", false, "路径必须以关键字开头,而不只是包含")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 4, "并发worker数")
	rootCmd.Flags().IntVar(&maxRetries, "retries", 3, "超时重试次数")
	rootCmd.Flags().IntVar(&timeout, "timeout", 60, "单次加载超时(秒)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "dynamic", "抓取模式 (dynamic|static)")
	rootCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	rootCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")

	stateCmd.Flags().IntVarP(&stateHead, "head", "n", 10, "显示队列前n项,-1显示全部")

	// 添加子命令
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
