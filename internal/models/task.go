package models

import (
	"fmt"
	"time"
)

// CrawlMode 抓取模式
type CrawlMode string

const (
	ModeDynamic CrawlMode = "dynamic" // 浏览器渲染(rod)
	ModeStatic  CrawlMode = "static"  // 纯HTTP(colly)
)

// TaskStats 任务统计
type TaskStats struct {
	Processed   int     `json:"processed"`    // 已处理URL数(含失败)
	Succeeded   int     `json:"succeeded"`    // 抓取成功
	TimedOut    int     `json:"timed_out"`    // 重试耗尽后丢弃
	Failed      int     `json:"failed"`       // 非超时错误丢弃
	Interrupted int     `json:"interrupted"`  // 关闭时放回队列
	Discovered  int     `json:"discovered"`   // 新入队的链接数
	Attempts    int     `json:"attempts"`     // 总尝试次数
	TextBytes   int64   `json:"text_bytes"`   // 写入的文本字节数
	SinkErrors  int     `json:"sink_errors"`  // 内容写入失败次数
	SaveErrors  int     `json:"save_errors"`  // 检查点写入失败次数
	Duration    float64 `json:"duration"`     // 总耗时(秒)
}

// CrawlConfig 爬取配置
type CrawlConfig struct {
	Scheme           string    `json:"scheme" mapstructure:"scheme"`                       // 种子URL的协议,为空时取第一个种子
	Domain           string    `json:"domain" mapstructure:"domain"`                       // 允许的主机名,为空时取第一个种子
	PathPrefix       string    `json:"path_prefix" mapstructure:"path_prefix"`             // 路径关键字,为空时取第一个种子
	StrictPrefix     bool      `json:"strict_prefix" mapstructure:"strict_prefix"`         // 路径必须以关键字开头
	Workers          int       `json:"workers" mapstructure:"workers"`                     // 并发worker数 (默认:4)
	MaxRetries       int       `json:"max_retries" mapstructure:"max_retries"`             // 超时重试次数 (默认:3)
	Timeout          int       `json:"timeout" mapstructure:"timeout"`                     // 单次尝试超时(秒) (默认:60)
	DelayMin         float64   `json:"delay_min" mapstructure:"delay_min"`                 // 随机延迟下限(秒) (默认:1)
	DelayMax         float64   `json:"delay_max" mapstructure:"delay_max"`                 // 随机延迟上限(秒) (默认:3)
	Mode             CrawlMode `json:"mode" mapstructure:"mode"`                           // dynamic|static
	Headless         bool      `json:"headless" mapstructure:"headless"`                   // 无头模式 (默认:true)
	UserAgent        string    `json:"user_agent" mapstructure:"user_agent"`               // 请求User-Agent
	ReadMoreSelector string    `json:"read_more_selector" mapstructure:"read_more_selector"` // 展开按钮选择器,为空则不点击
	ClickPause       int       `json:"click_pause" mapstructure:"click_pause"`             // 点击间隔(毫秒) (默认:1000)
}

// Validate 验证配置
func (c *CrawlConfig) Validate() error {
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("worker数必须在1-64之间")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 20 {
		return fmt.Errorf("重试次数必须在0-20之间")
	}
	if c.Timeout < 1 || c.Timeout > 600 {
		return fmt.Errorf("超时时间必须在1-600秒之间")
	}
	if c.DelayMin < 0 || c.DelayMax < c.DelayMin {
		return fmt.Errorf("延迟范围无效: %.1f-%.1f秒", c.DelayMin, c.DelayMax)
	}
	if c.Mode != ModeDynamic && c.Mode != ModeStatic {
		return fmt.Errorf("无效的抓取模式: %s (有效值: dynamic, static)", c.Mode)
	}
	if c.ClickPause < 0 {
		return fmt.Errorf("点击间隔不能为负数")
	}
	return nil
}

// AttemptTimeout 单次尝试超时
func (c *CrawlConfig) AttemptTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// DelayRange 随机延迟区间
func (c *CrawlConfig) DelayRange() (time.Duration, time.Duration) {
	return seconds(c.DelayMin), seconds(c.DelayMax)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ResourceConfig 浏览器资源限制
type ResourceConfig struct {
	SafetyReserveMemory int `json:"safety_reserve_memory" mapstructure:"safety_reserve_memory"` // 保留内存(MB)
	SafetyThreshold     int `json:"safety_threshold" mapstructure:"safety_threshold"`           // 安全阈值(MB)
	CPULoadThreshold    int `json:"cpu_load_threshold" mapstructure:"cpu_load_threshold"`       // CPU阈值(%),>=200视为禁用
	MaxTabsLimit        int `json:"max_tabs_limit" mapstructure:"max_tabs_limit"`               // 标签页绝对上限
}

// CrawlTask 正在处理的URL
type CrawlTask struct {
	URL         string      `json:"url"`
	Attempts    int         `json:"attempts"`
	Outcome     TaskOutcome `json:"outcome"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
}

// NewCrawlTask 创建任务
func NewCrawlTask(url string) *CrawlTask {
	return &CrawlTask{
		URL:       url,
		StartedAt: time.Now(),
	}
}

// Finish 记录任务结果
func (t *CrawlTask) Finish(outcome TaskOutcome, err error) {
	t.Outcome = outcome
	t.CompletedAt = time.Now()
	if err != nil {
		t.Error = err.Error()
	}
}
