package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "crawl_state")
	store, err := NewFileStore(dir, "", "")
	if err != nil {
		t.Fatalf("NewFileStore() 错误: %v", err)
	}
	return store, dir
}

func TestFileStoreLoadEmpty(t *testing.T) {
	store, dir := newTestFileStore(t)

	state, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() 错误: %v", err)
	}
	if !state.IsEmpty() {
		t.Errorf("没有检查点时应返回空状态, 实际 %+v", state)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("检查点目录应已创建: %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, dir := newTestFileStore(t)
	ctx := context.Background()

	state := models.FrontierState{
		Pending: []string{"https://a.com/3", "https://a.com/1", "https://a.com/2", "https://a.com/1"},
		Visited: []string{"https://a.com/0", "https://a.com/2"},
	}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() 错误: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() 错误: %v", err)
	}
	want := models.FrontierState{
		Pending: []string{"https://a.com/3", "https://a.com/1"},
		Visited: []string{"https://a.com/0", "https://a.com/2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, 期望 %+v", got, want)
	}

	// 两个独立的JSON数组文档
	for _, name := range []string{DefaultPendingFile, DefaultVisitedFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("读取 %s 失败: %v", name, err)
		}
		if _, err := models.UnmarshalList(data); err != nil {
			t.Errorf("%s 不是JSON数组: %v", name, err)
		}
	}

	// 不残留临时文件
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("检查点目录文件数 = %d, 期望 2", len(entries))
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	_ = store.Save(ctx, models.FrontierState{Pending: []string{"https://a.com/1", "https://a.com/2"}})
	_ = store.Save(ctx, models.FrontierState{Pending: []string{"https://a.com/2"}, Visited: []string{"https://a.com/1"}})

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() 错误: %v", err)
	}
	if !reflect.DeepEqual(got.Pending, []string{"https://a.com/2"}) || !reflect.DeepEqual(got.Visited, []string{"https://a.com/1"}) {
		t.Errorf("覆盖写入后 = %+v", got)
	}
}

func TestFileStoreLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		pending string // 为空表示不创建
		visited string
		wantErr bool
		want    models.FrontierState
	}{
		{
			name:    "Pending损坏",
			pending: `["https://a.com/1",`,
			visited: `[]`,
			wantErr: true,
		},
		{
			name:    "Visited不是数组",
			pending: `[]`,
			visited: `{"url": "https://a.com/1"}`,
			wantErr: true,
		},
		{
			name:    "空文件视为损坏",
			pending: " ",
			wantErr: true,
		},
		{
			name:    "只有Visited",
			visited: `["https://a.com/1"]`,
			want:    models.FrontierState{Pending: []string{}, Visited: []string{"https://a.com/1"}},
		},
		{
			name:    "只有Pending",
			pending: `["https://a.com/1"]`,
			want:    models.FrontierState{Pending: []string{"https://a.com/1"}, Visited: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, dir := newTestFileStore(t)
			if tt.pending != "" {
				_ = os.WriteFile(filepath.Join(dir, DefaultPendingFile), []byte(tt.pending), 0644)
			}
			if tt.visited != "" {
				_ = os.WriteFile(filepath.Join(dir, DefaultVisitedFile), []byte(tt.visited), 0644)
			}

			got, err := store.Load(context.Background())
			if tt.wantErr {
				var cpErr *models.CheckpointError
				if !errors.As(err, &cpErr) {
					t.Fatalf("错误 = %v, 期望 *models.CheckpointError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() 错误: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Load() = %+v, 期望 %+v", got, tt.want)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open() 错误: %v", err)
	}
	if _, ok := store.(*FileStore); !ok {
		t.Errorf("默认后端应为文件, 实际 %T", store)
	}

	store, err = Open(Options{Backend: BackendRedis, RedisAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("Open(redis) 错误: %v", err)
	}
	if _, ok := store.(*RedisStore); !ok {
		t.Errorf("后端应为Redis, 实际 %T", store)
	}
	_ = store.Close()

	if _, err := Open(Options{Backend: "s3", Dir: dir}); err == nil {
		t.Error("未知后端应返回错误")
	}
}
