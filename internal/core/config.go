package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/scopecrawl/internal/checkpoint"
	"github.com/RecoveryAshes/scopecrawl/internal/crawlers"
	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/sink"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
	"github.com/spf13/viper"
)

const (
	// DefaultOutputRoot 文本与检查点的根目录
	DefaultOutputRoot = "text_2"

	// MaxConfigFileSize 配置文件最大大小 (1MB)
	MaxConfigFileSize = 1 * 1024 * 1024
)

// Config 应用程序配置
type Config struct {
	Crawl      models.CrawlConfig    `mapstructure:"crawl"`
	Resource   models.ResourceConfig `mapstructure:"resource"`
	Checkpoint CheckpointConfig      `mapstructure:"checkpoint"`
	Sink       SinkConfig            `mapstructure:"sink"`
	Logging    LoggingConfig         `mapstructure:"logging"`
	Output     OutputConfig          `mapstructure:"output"`

	// Headers 额外请求头部,优先级低于命令行 -H
	Headers map[string]string `mapstructure:"headers"`
}

// CheckpointConfig 检查点配置
type CheckpointConfig struct {
	Backend     string `mapstructure:"backend"` // file|redis
	Dir         string `mapstructure:"dir"`
	PendingFile string `mapstructure:"pending_file"`
	VisitedFile string `mapstructure:"visited_file"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

// Options 转换为检查点存储参数
func (c CheckpointConfig) Options() checkpoint.Options {
	return checkpoint.Options{
		Backend:     checkpoint.Backend(c.Backend),
		Dir:         c.Dir,
		PendingFile: c.PendingFile,
		VisitedFile: c.VisitedFile,
		RedisAddr:   c.RedisAddr,
		RedisPrefix: c.RedisPrefix,
	}
}

// SinkConfig 文本存储配置,可同时启用多个
type SinkConfig struct {
	File   FileSinkConfig   `mapstructure:"file"`
	SQLite SQLiteSinkConfig `mapstructure:"sqlite"`
	Kafka  KafkaSinkConfig  `mapstructure:"kafka"`
}

// FileSinkConfig 文件存储
type FileSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseDir string `mapstructure:"base_dir"` // 为空时为 text_2/<域名>
}

// SQLiteSinkConfig SQLite存储
type SQLiteSinkConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// KafkaSinkConfig Kafka存储
type KafkaSinkConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LogConfig 转换为日志初始化参数
func (c LoggingConfig) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Level,
		LogDir:     c.LogDir,
		MaxSize:    c.Rotation.MaxSize,
		MaxBackups: c.Rotation.MaxBackups,
		MaxAge:     c.Rotation.MaxAge,
		Compress:   c.Rotation.Compress,
	}
}

// OutputConfig 输出配置
type OutputConfig struct {
	ReportDir string `mapstructure:"report_dir"`
	Progress  bool   `mapstructure:"progress"` // 显示进度条
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		if err := validateFileSize(configPath); err != nil {
			return nil, err
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".scopecrawl"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置失败: %w", err)}
	}

	return &config, nil
}

// validateFileSize 拒绝过大的配置文件
func validateFileSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &models.ConfigError{FilePath: path, Cause: fmt.Errorf("无法读取配置文件信息: %w", err)}
	}
	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: path,
			Cause:    fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)", info.Size(), MaxConfigFileSize),
		}
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 爬取配置默认值
	v.SetDefault("crawl.domain", "")
	v.SetDefault("crawl.path_prefix", "")
	v.SetDefault("crawl.strict_prefix", false)
	v.SetDefault("crawl.workers", 4)
	v.SetDefault("crawl.max_retries", 3)
	v.SetDefault("crawl.timeout", 60)
	v.SetDefault("crawl.delay_min", 1.0)
	v.SetDefault("crawl.delay_max", 3.0)
	v.SetDefault("crawl.mode", string(models.ModeDynamic))
	v.SetDefault("crawl.headless", true)
	v.SetDefault("crawl.user_agent", DefaultUserAgent)
	v.SetDefault("crawl.read_more_selector", ".read-more")
	v.SetDefault("crawl.click_pause", 1000)

	// 资源限制默认值
	v.SetDefault("resource.safety_reserve_memory", 1024)
	v.SetDefault("resource.safety_threshold", 500)
	v.SetDefault("resource.cpu_load_threshold", 80)
	v.SetDefault("resource.max_tabs_limit", 16)

	// 检查点默认值
	v.SetDefault("checkpoint.backend", string(checkpoint.BackendFile))
	v.SetDefault("checkpoint.dir", filepath.Join(DefaultOutputRoot, "crawl_state"))
	v.SetDefault("checkpoint.pending_file", checkpoint.DefaultPendingFile)
	v.SetDefault("checkpoint.visited_file", checkpoint.DefaultVisitedFile)
	v.SetDefault("checkpoint.redis_addr", "localhost:6379")
	v.SetDefault("checkpoint.redis_prefix", checkpoint.DefaultRedisPrefix)

	// 存储默认值
	v.SetDefault("sink.file.enabled", true)
	v.SetDefault("sink.file.base_dir", "")
	v.SetDefault("sink.sqlite.enabled", false)
	v.SetDefault("sink.sqlite.path", filepath.Join(DefaultOutputRoot, "pages.db"))
	v.SetDefault("sink.kafka.enabled", false)
	v.SetDefault("sink.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("sink.kafka.topic", "scopecrawl.pages")

	// 日志配置默认值
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	// 输出配置默认值
	v.SetDefault("output.report_dir", DefaultOutputRoot)
	v.SetDefault("output.progress", true)
}

// ResolveScope 为空的协议、域名与路径前缀取自第一个种子URL
func (c *Config) ResolveScope(seeds []string) error {
	scoped := c.Crawl.Domain != "" && c.Crawl.PathPrefix != ""
	if scoped && (c.Crawl.Scheme != "" || len(seeds) == 0) {
		return nil
	}
	if len(seeds) == 0 {
		return fmt.Errorf("未配置爬取范围且没有种子URL")
	}
	scope, err := crawlers.ScopeFromURL(seeds[0])
	if err != nil {
		return err
	}
	if c.Crawl.Scheme == "" {
		c.Crawl.Scheme = scope.Scheme
	}
	if c.Crawl.Domain == "" {
		c.Crawl.Domain = scope.Domain
	}
	if c.Crawl.PathPrefix == "" {
		c.Crawl.PathPrefix = scope.PathPrefix
	}
	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Crawl.Validate(); err != nil {
		return err
	}
	switch checkpoint.Backend(c.Checkpoint.Backend) {
	case checkpoint.BackendFile:
		if c.Checkpoint.Dir == "" {
			return fmt.Errorf("检查点目录不能为空")
		}
	case checkpoint.BackendRedis:
		if c.Checkpoint.RedisAddr == "" {
			return fmt.Errorf("Redis地址不能为空")
		}
	default:
		return fmt.Errorf("无效的检查点后端: %s (有效值: file, redis)", c.Checkpoint.Backend)
	}
	if c.Sink.Kafka.Enabled && (len(c.Sink.Kafka.Brokers) == 0 || c.Sink.Kafka.Topic == "") {
		return fmt.Errorf("启用Kafka存储时必须配置brokers与topic")
	}
	if c.Sink.SQLite.Enabled && c.Sink.SQLite.Path == "" {
		return fmt.Errorf("启用SQLite存储时必须配置path")
	}
	return nil
}

// FileSinkDir 文件存储目录
func (c *Config) FileSinkDir() string {
	if c.Sink.File.BaseDir != "" {
		return c.Sink.File.BaseDir
	}
	return sink.OutputDir(DefaultOutputRoot, c.Crawl.Domain)
}

// ClickPauseDuration 点击间隔
func (c *Config) ClickPauseDuration() time.Duration {
	return time.Duration(c.Crawl.ClickPause) * time.Millisecond
}
