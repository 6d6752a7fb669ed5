package crawlers

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

func TestFrontierEnqueueIfNew(t *testing.T) {
	f := NewFrontier()

	if !f.EnqueueIfNew("https://a.com/x") {
		t.Fatal("首次入队应返回true")
	}
	if f.EnqueueIfNew("https://a.com/x") {
		t.Error("重复入队应返回false")
	}

	// 出队并完成后仍不能再次准入
	url, ok := f.Dequeue()
	if !ok || url != "https://a.com/x" {
		t.Fatalf("Dequeue() = %q, %v", url, ok)
	}
	if f.EnqueueIfNew("https://a.com/x") {
		t.Error("处理中的URL不应再次准入")
	}
	f.MarkVisited(url)
	if f.EnqueueIfNew("https://a.com/x") {
		t.Error("已访问的URL不应再次准入")
	}
}

func TestFrontierConcurrentEnqueue(t *testing.T) {
	f := NewFrontier()
	const goroutines = 32
	const urls = 200

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < urls; i++ {
				if f.EnqueueIfNew(fmt.Sprintf("https://a.com/p/%d", i)) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != urls {
		t.Errorf("并发准入次数 = %d, 期望 %d", got, urls)
	}
	if got := f.PendingCount(); got != urls {
		t.Errorf("PendingCount() = %d, 期望 %d", got, urls)
	}
}

func TestFrontierFIFO(t *testing.T) {
	f := NewFrontier()
	want := []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"}
	for _, u := range want {
		f.EnqueueIfNew(u)
	}

	var got []string
	for {
		u, ok := f.Dequeue()
		if !ok {
			break
		}
		got = append(got, u)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("出队顺序 = %v, 期望 %v", got, want)
	}
}

func TestFrontierIsDrained(t *testing.T) {
	f := NewFrontier()
	if !f.IsDrained() {
		t.Error("空Frontier应为耗尽状态")
	}

	f.EnqueueIfNew("https://a.com/1")
	if f.IsDrained() {
		t.Error("有待处理URL时不应耗尽")
	}

	url, _ := f.Dequeue()
	if f.IsDrained() {
		t.Error("有处理中URL时不应耗尽")
	}
	if _, ok := f.Dequeue(); ok {
		t.Error("队列为空时Dequeue应返回false")
	}

	f.MarkVisited(url)
	if !f.IsDrained() {
		t.Error("全部完成后应为耗尽状态")
	}
}

func TestFrontierChanged(t *testing.T) {
	f := NewFrontier()
	ch := f.Changed()

	select {
	case <-ch:
		t.Fatal("没有变化时channel不应关闭")
	default:
	}

	f.EnqueueIfNew("https://a.com/1")
	select {
	case <-ch:
	default:
		t.Fatal("入队后channel应关闭")
	}

	if f.Changed() == ch {
		t.Error("变化后应返回新的channel")
	}
}

func TestFrontierRequeue(t *testing.T) {
	f := NewFrontier()
	f.EnqueueIfNew("https://a.com/1")
	f.EnqueueIfNew("https://a.com/2")

	url, _ := f.Dequeue()
	f.Requeue(url)

	next, _ := f.Dequeue()
	if next != "https://a.com/1" {
		t.Errorf("放回的URL应位于队首, 实际出队 %q", next)
	}

	// 未在处理中的URL不会被放回
	f.Requeue("https://a.com/unknown")
	if got := f.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, 期望 1", got)
	}
}

func TestFrontierSnapshot(t *testing.T) {
	f := NewFrontier()
	for _, u := range []string{"https://a.com/1", "https://a.com/2", "https://a.com/3"} {
		f.EnqueueIfNew(u)
	}

	first, _ := f.Dequeue()
	f.MarkVisited(first)
	second, _ := f.Dequeue() // 处理中

	state := f.Snapshot()
	wantPending := []string{second, "https://a.com/3"}
	if !reflect.DeepEqual(state.Pending, wantPending) {
		t.Errorf("Pending = %v, 期望 %v", state.Pending, wantPending)
	}
	if !reflect.DeepEqual(state.Visited, []string{first}) {
		t.Errorf("Visited = %v, 期望 [%s]", state.Visited, first)
	}
}

func TestFrontierRestore(t *testing.T) {
	tests := []struct {
		name        string
		state       models.FrontierState
		wantPending []string
		wantVisited int
	}{
		{
			name:        "空状态",
			state:       models.FrontierState{},
			wantPending: nil,
		},
		{
			name: "已访问的URL不再入队",
			state: models.FrontierState{
				Pending: []string{"https://a.com/1", "https://a.com/2"},
				Visited: []string{"https://a.com/1"},
			},
			wantPending: []string{"https://a.com/2"},
			wantVisited: 1,
		},
		{
			name: "保持Pending顺序并去重",
			state: models.FrontierState{
				Pending: []string{"https://a.com/3", "https://a.com/1", "https://a.com/3"},
			},
			wantPending: []string{"https://a.com/3", "https://a.com/1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFrontier()
			f.Restore(tt.state)

			var got []string
			for {
				u, ok := f.Dequeue()
				if !ok {
					break
				}
				got = append(got, u)
			}
			if !reflect.DeepEqual(got, tt.wantPending) {
				t.Errorf("恢复后的队列 = %v, 期望 %v", got, tt.wantPending)
			}
			if f.VisitedCount() != tt.wantVisited {
				t.Errorf("VisitedCount() = %d, 期望 %d", f.VisitedCount(), tt.wantVisited)
			}
			for _, v := range tt.state.Visited {
				if f.EnqueueIfNew(v) {
					t.Errorf("已访问的URL %s 不应再次准入", v)
				}
			}
		})
	}
}
