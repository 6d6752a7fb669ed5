package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestSanitizeFilename(t *testing.T) {
	const trim = "https://www.example.com/path"

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"去掉公共前缀", "https://www.example.com/path/intro", "intro"},
		{"多级路径", "https://www.example.com/path/a/b/c", "a_b_c"},
		{"查询参数", "https://www.example.com/path/search?q=go&page=2", "search_qgopage2"},
		{"前缀本身", "https://www.example.com/path", "index"},
		{"前缀加斜杠", "https://www.example.com/path/", "index"},
		{"非ASCII字符被移除", "https://www.example.com/path/文档-1", "-1"},
		{"前缀不匹配时保留完整URL", "http://www.example.com/path/x", "http___www.example.com_path_x"},
		{"保留点与下划线", "https://www.example.com/path/v1.2_final", "v1.2_final"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.url, trim); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, 期望 %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestOutputDir(t *testing.T) {
	if got := OutputDir("text_2", "www.example.com"); got != filepath.Join("text_2", "www_example_com") {
		t.Errorf("OutputDir() = %q", got)
	}
}

func TestFileSinkStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSink(dir, "https", "a.com", "/docs")
	if err != nil {
		t.Fatalf("NewFileSink() 错误: %v", err)
	}
	ctx := context.Background()

	if err := s.Store(ctx, "https://a.com/docs/intro", "第一版"); err != nil {
		t.Fatalf("Store() 错误: %v", err)
	}
	// 不同URL清洗后同名
	if err := s.Store(ctx, "https://a.com/docs/intro?", "第二版"); err != nil {
		t.Fatalf("Store() 错误: %v", err)
	}
	if err := s.Store(ctx, "https://a.com/docs/intro*", "第三版"); err != nil {
		t.Fatalf("Store() 错误: %v", err)
	}

	got := readDir(t, dir)
	if got["intro.txt"] != "第一版" {
		t.Errorf("intro.txt = %q", got["intro.txt"])
	}
	if got["intro_.txt"] != "第二版" {
		t.Errorf("intro_.txt = %q", got["intro_.txt"])
	}
	if got["intro__1.txt"] != "第三版" {
		t.Errorf("重名文件应追加后缀, 实际文件: %v", keys(got))
	}
}

func TestFileSinkSchemeFromSeed(t *testing.T) {
	tests := []struct {
		name   string
		scheme string
		url    string
		want   string
	}{
		{"http种子", "http", "http://a.com/docs/intro", "intro.txt"},
		{"https种子", "https", "https://a.com/docs/intro", "intro.txt"},
		{"协议为空按https", "", "https://a.com/docs/intro", "intro.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s, err := NewFileSink(dir, tt.scheme, "a.com", "/docs")
			if err != nil {
				t.Fatalf("NewFileSink() 错误: %v", err)
			}
			path, err := s.Path(tt.url)
			if err != nil {
				t.Fatalf("Path() 错误: %v", err)
			}
			if got := filepath.Base(path); got != tt.want {
				t.Errorf("文件名 = %q, 期望 %q", got, tt.want)
			}
		})
	}
}

// closeFailWriter 写入成功但关闭失败,模拟缓冲数据落盘失败
type closeFailWriter struct {
	written  strings.Builder
	writeErr error
	closed   bool
}

func (w *closeFailWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.written.Write(p)
}

func (w *closeFailWriter) Close() error {
	w.closed = true
	return errors.New("磁盘已满")
}

func TestWriteAndClose(t *testing.T) {
	t.Run("关闭失败返回错误", func(t *testing.T) {
		w := &closeFailWriter{}
		if err := writeAndClose(w, "正文"); err == nil || err.Error() != "磁盘已满" {
			t.Errorf("writeAndClose() 错误 = %v, 期望关闭错误", err)
		}
		if w.written.String() != "正文" {
			t.Errorf("写入内容 = %q", w.written.String())
		}
	})

	t.Run("写入失败返回写入错误并关闭", func(t *testing.T) {
		writeErr := errors.New("写入中断")
		w := &closeFailWriter{writeErr: writeErr}
		if err := writeAndClose(w, "正文"); !errors.Is(err, writeErr) {
			t.Errorf("writeAndClose() 错误 = %v, 期望 %v", err, writeErr)
		}
		if !w.closed {
			t.Error("写入失败后仍应关闭文件")
		}
	})
}

func TestFileSinkCollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileSink(dir, "https", "a.com", "/docs")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Store(ctx, "https://a.com/docs/page", fmt.Sprintf("v%d", i)); err != nil {
			t.Fatalf("Store() 错误: %v", err)
		}
	}

	got := readDir(t, dir)
	for name, content := range map[string]string{"page.txt": "v0", "page_1.txt": "v1", "page_2.txt": "v2"} {
		if got[name] != content {
			t.Errorf("%s = %q, 期望 %q (全部文件: %v)", name, got[name], content, keys(got))
		}
	}
}

func TestFileSinkConcurrent(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileSink(dir, "https", "a.com", "/docs")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Store(context.Background(), "https://a.com/docs/same", fmt.Sprintf("%d", i))
		}(i)
	}
	wg.Wait()

	if got := len(readDir(t, dir)); got != 20 {
		t.Errorf("并发写入同名页面应生成 20 个文件, 实际 %d", got)
	}
}

func TestFileSinkPathLength(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewFileSink(dir, "https", "a.com", "/docs")

	long := "https://a.com/docs/" + strings.Repeat("x", 400)
	path, err := s.Path(long)
	if err != nil {
		t.Fatalf("Path() 错误: %v", err)
	}
	if len(path) > MaxPathLength {
		t.Errorf("路径长度 = %d, 不应超过 %d", len(path), MaxPathLength)
	}
	if !strings.HasSuffix(path, ".txt") {
		t.Errorf("路径应以.txt结尾: %s", path)
	}

	deep, _ := NewFileSink(filepath.Join(dir, strings.Repeat("d", 250)), "https", "a.com", "/docs")
	if deep != nil {
		if _, err := deep.Path("https://a.com/docs/x"); err == nil {
			t.Error("目录路径过长时应返回错误")
		}
	}
}

func TestSQLiteSink(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db", "pages.db")
	s, err := NewSQLiteSink(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteSink() 错误: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.Store(ctx, "https://a.com/1", "旧内容"); err != nil {
		t.Fatalf("Store() 错误: %v", err)
	}
	if err := s.Store(ctx, "https://a.com/1", "新内容"); err != nil {
		t.Fatalf("Store() 错误: %v", err)
	}
	if err := s.Store(ctx, "https://a.com/2", "第二页"); err != nil {
		t.Fatalf("Store() 错误: %v", err)
	}

	text, found, err := s.Lookup(ctx, "https://a.com/1")
	if err != nil || !found || text != "新内容" {
		t.Errorf("Lookup() = %q, %v, %v", text, found, err)
	}
	if _, found, _ := s.Lookup(ctx, "https://a.com/none"); found {
		t.Error("不存在的URL不应找到")
	}
	if n, err := s.Count(ctx); err != nil || n != 2 {
		t.Errorf("Count() = %d, %v, 期望 2", n, err)
	}
}

// fakeWriter 记录写入的Kafka消息
type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkStore(t *testing.T) {
	w := &fakeWriter{}
	s := NewKafkaSinkWithWriter(w)

	if err := s.Store(context.Background(), "https://a.com/1", "正文"); err != nil {
		t.Fatalf("Store() 错误: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("消息数 = %d, 期望 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "https://a.com/1" {
		t.Errorf("消息键 = %q", w.msgs[0].Key)
	}

	var got PageMessage
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("解析消息失败: %v", err)
	}
	if got.URL != "https://a.com/1" || got.Text != "正文" || got.FetchedAt.IsZero() {
		t.Errorf("消息内容 = %+v", got)
	}

	if err := s.Close(); err != nil || !w.closed {
		t.Error("Close() 应关闭writer")
	}
}

func TestKafkaSinkErrors(t *testing.T) {
	s := NewKafkaSinkWithWriter(&fakeWriter{err: errors.New("broker down")})
	if err := s.Store(context.Background(), "https://a.com/1", "x"); err == nil {
		t.Error("写入失败时应返回错误")
	}

	if _, err := NewKafkaSink(nil, "pages"); err == nil {
		t.Error("broker为空时应返回错误")
	}
	if _, err := NewKafkaSink([]string{"localhost:9092"}, ""); err == nil {
		t.Error("topic为空时应返回错误")
	}
}

// recordingSink 记录调用
type recordingSink struct {
	stored []string
	err    error
	closed bool
}

func (r *recordingSink) Store(ctx context.Context, pageURL, text string) error {
	r.stored = append(r.stored, pageURL)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("磁盘已满")}
	m := Multi{bad, ok}

	err := m.Store(context.Background(), "https://a.com/1", "x")
	if err == nil || !strings.Contains(err.Error(), "磁盘已满") {
		t.Errorf("Store() 错误 = %v", err)
	}
	if len(ok.stored) != 1 {
		t.Error("一个目标失败不应影响其他目标")
	}

	if err := m.Close(); err == nil {
		t.Error("Close() 应返回关闭错误")
	}
	if !ok.closed || !bad.closed {
		t.Error("全部目标都应被关闭")
	}
}

func readDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("读取文件失败: %v", err)
		}
		out[e.Name()] = string(data)
	}
	return out
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
