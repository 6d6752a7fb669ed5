package models

import (
	"encoding/json"
	"fmt"
)

// FrontierState 可持久化的爬取进度
// Pending 保持FIFO顺序;Visited 仅包含已处理完成的URL
type FrontierState struct {
	Pending []string `json:"pending"`
	Visited []string `json:"visited"`
}

// IsEmpty 是否没有任何进度
func (s FrontierState) IsEmpty() bool {
	return len(s.Pending) == 0 && len(s.Visited) == 0
}

// Normalize 去重,并移除已在Visited中的Pending项
// Pending 的相对顺序保持不变
func (s FrontierState) Normalize() FrontierState {
	visited := make(map[string]struct{}, len(s.Visited))
	out := FrontierState{
		Pending: make([]string, 0, len(s.Pending)),
		Visited: make([]string, 0, len(s.Visited)),
	}
	for _, u := range s.Visited {
		if _, ok := visited[u]; ok {
			continue
		}
		visited[u] = struct{}{}
		out.Visited = append(out.Visited, u)
	}

	queued := make(map[string]struct{}, len(s.Pending))
	for _, u := range s.Pending {
		if _, ok := visited[u]; ok {
			continue
		}
		if _, ok := queued[u]; ok {
			continue
		}
		queued[u] = struct{}{}
		out.Pending = append(out.Pending, u)
	}
	return out
}

// MarshalList 序列化URL列表(检查点单个文档格式)
func MarshalList(urls []string) ([]byte, error) {
	if urls == nil {
		urls = []string{}
	}
	return json.MarshalIndent(urls, "", "  ")
}

// UnmarshalList 解析URL列表
func UnmarshalList(data []byte) ([]string, error) {
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, err
	}
	return urls, nil
}

// CheckpointError 检查点损坏或不可读
// 启动时遇到该错误应终止运行,不自动修复
type CheckpointError struct {
	// Location 文件路径或Redis键
	Location string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("检查点损坏 [%s]: %v", e.Location, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *CheckpointError) Unwrap() error {
	return e.Cause
}
