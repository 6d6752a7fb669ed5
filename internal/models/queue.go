package models

// TaskOutcome 单个URL的处理结果
//   - succeeded: 抓取成功,文本与链接已处理
//   - timed_out: 超时重试耗尽,URL被丢弃
//   - failed: 非超时错误,不重试直接丢弃
//   - interrupted: 关闭信号到达时尚未完成,放回待处理队列
type TaskOutcome string

const (
	OutcomeSucceeded   TaskOutcome = "succeeded"
	OutcomeTimedOut    TaskOutcome = "timed_out"
	OutcomeFailed      TaskOutcome = "failed"
	OutcomeInterrupted TaskOutcome = "interrupted"
)

// Settled 是否已有最终结果(需要标记为已访问)
func (o TaskOutcome) Settled() bool {
	return o != OutcomeInterrupted && o != ""
}

// Record 累加到统计
func (s *TaskStats) Record(task *CrawlTask) {
	s.Attempts += task.Attempts
	switch task.Outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeTimedOut:
		s.TimedOut++
	case OutcomeFailed:
		s.Failed++
	case OutcomeInterrupted:
		s.Interrupted++
		return
	}
	s.Processed++
}
