package models

import (
	"encoding/json"
	"time"
)

// CrawlReport 爬取报告
type CrawlReport struct {
	// 运行信息
	RunID      string    `json:"run_id"`
	Seeds      []string  `json:"seeds"`
	Domain     string    `json:"domain"`
	PathPrefix string    `json:"path_prefix"`
	Mode       CrawlMode `json:"mode"`

	// 时间信息
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  float64   `json:"duration"` // 秒

	// 结束状态
	Interrupted  bool `json:"interrupted"`   // 是否因信号提前结束
	PendingCount int  `json:"pending_count"` // 剩余待处理URL
	VisitedCount int  `json:"visited_count"` // 累计已处理URL(含历史运行)

	Stats       TaskStats        `json:"stats"`
	FailedPages []FailedPageInfo `json:"failed_pages"`

	CheckpointLocation string      `json:"checkpoint_location"`
	Config             CrawlConfig `json:"config"`
}

// FailedPageInfo 失败页面信息
type FailedPageInfo struct {
	URL      string      `json:"url"`
	Outcome  TaskOutcome `json:"outcome"` // timed_out 或 failed
	ErrorMsg string      `json:"error_msg"`
	Attempts int         `json:"attempts"`
}

// ToJSON 序列化为JSON
func (r *CrawlReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
