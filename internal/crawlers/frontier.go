package crawlers

import (
	"sync"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

// Frontier 爬取边界: 待处理队列 + 已准入集合
// 职责: 保证每个URL在整个运行期间最多被准入一次,所有操作在同一把锁下完成
type Frontier struct {
	mu sync.Mutex

	// 待处理队列(FIFO)
	pending []string

	// 曾经准入过的URL,只增不减,用于去重
	admitted map[string]struct{}

	// 已处理完成的URL,按完成顺序记录,持久化为visited
	completed     map[string]struct{}
	completedList []string

	// 已出队但尚未完成的URL,按出队顺序
	inFlight []string

	// 状态变化通知,每次变化时关闭并替换
	changed chan struct{}
}

// NewFrontier 创建空的Frontier
func NewFrontier() *Frontier {
	return &Frontier{
		admitted:  make(map[string]struct{}),
		completed: make(map[string]struct{}),
		changed:   make(chan struct{}),
	}
}

// EnqueueIfNew 当URL从未被准入时加入队尾,返回是否准入
// 检查与插入在同一临界区内完成
func (f *Frontier) EnqueueIfNew(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.admitted[url]; ok {
		return false
	}
	f.admitted[url] = struct{}{}
	f.pending = append(f.pending, url)
	f.notifyLocked()
	return true
}

// Dequeue 非阻塞地取出队首URL,队列为空时返回false
// 取出的URL进入处理中状态,直到MarkVisited或Requeue
func (f *Frontier) Dequeue() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) == 0 {
		return "", false
	}
	url := f.pending[0]
	f.pending[0] = ""
	f.pending = f.pending[1:]
	f.inFlight = append(f.inFlight, url)
	return url, true
}

// MarkVisited 标记URL处理完成(无论成功或被丢弃)
func (f *Frontier) MarkVisited(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeInFlightLocked(url)
	if _, ok := f.completed[url]; !ok {
		f.completed[url] = struct{}{}
		f.completedList = append(f.completedList, url)
	}
	f.notifyLocked()
}

// Requeue 将被中断的URL放回队首,下次运行优先处理
func (f *Frontier) Requeue(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.removeInFlightLocked(url) {
		return
	}
	f.pending = append([]string{url}, f.pending...)
	f.notifyLocked()
}

// IsDrained 队列为空且没有处理中的URL
func (f *Frontier) IsDrained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending) == 0 && len(f.inFlight) == 0
}

// Changed 返回在下一次状态变化时关闭的channel
// 调用方应先取channel再检查状态,避免错过通知
func (f *Frontier) Changed() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed
}

// Snapshot 生成可持久化状态
// Visited为已完成URL;Pending为处理中的URL加上排队中的URL,不会丢失已准入的工作
func (f *Frontier) Snapshot() models.FrontierState {
	f.mu.Lock()
	defer f.mu.Unlock()

	state := models.FrontierState{
		Pending: make([]string, 0, len(f.inFlight)+len(f.pending)),
		Visited: make([]string, len(f.completedList)),
	}
	copy(state.Visited, f.completedList)
	for _, list := range [][]string{f.inFlight, f.pending} {
		for _, url := range list {
			if _, done := f.completed[url]; !done {
				state.Pending = append(state.Pending, url)
			}
		}
	}
	return state
}

// Restore 从检查点恢复,已访问的URL不会再次入队
func (f *Frontier) Restore(state models.FrontierState) {
	state = state.Normalize()

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, url := range state.Visited {
		f.admitted[url] = struct{}{}
		if _, ok := f.completed[url]; !ok {
			f.completed[url] = struct{}{}
			f.completedList = append(f.completedList, url)
		}
	}
	for _, url := range state.Pending {
		if _, ok := f.admitted[url]; ok {
			continue
		}
		f.admitted[url] = struct{}{}
		f.pending = append(f.pending, url)
	}
	f.notifyLocked()
}

// PendingCount 待处理URL数
func (f *Frontier) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// VisitedCount 已完成URL数
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.completedList)
}

// InFlightCount 处理中URL数
func (f *Frontier) InFlightCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}

func (f *Frontier) removeInFlightLocked(url string) bool {
	for i, u := range f.inFlight {
		if u == url {
			f.inFlight = append(f.inFlight[:i], f.inFlight[i+1:]...)
			return true
		}
	}
	return false
}

func (f *Frontier) notifyLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}
