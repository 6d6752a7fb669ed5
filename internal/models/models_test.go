package models

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://example.com/path/to/resource", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func validConfig() CrawlConfig {
	return CrawlConfig{
		Workers:    4,
		MaxRetries: 3,
		Timeout:    60,
		DelayMin:   1,
		DelayMax:   3,
		Mode:       ModeDynamic,
		ClickPause: 1000,
	}
}

func TestCrawlConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CrawlConfig)
		wantErr bool
	}{
		{"默认配置有效", func(c *CrawlConfig) {}, false},
		{"静态模式有效", func(c *CrawlConfig) { c.Mode = ModeStatic }, false},
		{"零重试有效", func(c *CrawlConfig) { c.MaxRetries = 0 }, false},
		{"worker为0", func(c *CrawlConfig) { c.Workers = 0 }, true},
		{"重试为负数", func(c *CrawlConfig) { c.MaxRetries = -1 }, true},
		{"超时为0", func(c *CrawlConfig) { c.Timeout = 0 }, true},
		{"延迟区间颠倒", func(c *CrawlConfig) { c.DelayMin, c.DelayMax = 3, 1 }, true},
		{"未知模式", func(c *CrawlConfig) { c.Mode = "all" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCrawlConfig_Durations(t *testing.T) {
	cfg := validConfig()
	cfg.DelayMin = 0.5

	if got := cfg.AttemptTimeout(); got != 60*time.Second {
		t.Errorf("AttemptTimeout() = %v, want 60s", got)
	}
	min, max := cfg.DelayRange()
	if min != 500*time.Millisecond || max != 3*time.Second {
		t.Errorf("DelayRange() = %v-%v, want 500ms-3s", min, max)
	}
}

func TestFrontierState_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   FrontierState
		want FrontierState
	}{
		{
			name: "空状态",
			in:   FrontierState{},
			want: FrontierState{Pending: []string{}, Visited: []string{}},
		},
		{
			name: "移除已访问的待处理项并保持顺序",
			in: FrontierState{
				Pending: []string{"a", "b", "c", "d"},
				Visited: []string{"c", "a"},
			},
			want: FrontierState{
				Pending: []string{"b", "d"},
				Visited: []string{"c", "a"},
			},
		},
		{
			name: "去除重复项",
			in: FrontierState{
				Pending: []string{"b", "b", "d", "b"},
				Visited: []string{"a", "a"},
			},
			want: FrontierState{
				Pending: []string{"b", "d"},
				Visited: []string{"a"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestURLList_RoundTrip(t *testing.T) {
	t.Run("nil序列化为空数组", func(t *testing.T) {
		data, err := MarshalList(nil)
		if err != nil {
			t.Fatalf("MarshalList失败: %v", err)
		}
		if string(data) != "[]" {
			t.Errorf("期望 [], 实际 %s", data)
		}
	})

	t.Run("非数组报错", func(t *testing.T) {
		if _, err := UnmarshalList([]byte(`{"pending": []}`)); err == nil {
			t.Error("期望解析错误")
		}
	})

	t.Run("保持顺序", func(t *testing.T) {
		in := []string{"https://a.b/3", "https://a.b/1", "https://a.b/2"}
		data, err := MarshalList(in)
		if err != nil {
			t.Fatalf("MarshalList失败: %v", err)
		}
		out, err := UnmarshalList(data)
		if err != nil {
			t.Fatalf("UnmarshalList失败: %v", err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("顺序不一致: %v vs %v", in, out)
		}
	})
}

func TestCheckpointError_Unwrap(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := error(&CheckpointError{Location: "state/seen.json", Cause: cause})

	if !errors.Is(err, cause) {
		t.Error("errors.Is 应能识别底层错误")
	}
	var cpErr *CheckpointError
	if !errors.As(err, &cpErr) || cpErr.Location != "state/seen.json" {
		t.Errorf("errors.As 失败: %v", err)
	}
}

func TestTaskStats_Record(t *testing.T) {
	var stats TaskStats
	for _, task := range []*CrawlTask{
		{Attempts: 1, Outcome: OutcomeSucceeded},
		{Attempts: 4, Outcome: OutcomeTimedOut},
		{Attempts: 1, Outcome: OutcomeFailed},
		{Attempts: 2, Outcome: OutcomeInterrupted},
	} {
		stats.Record(task)
	}

	if stats.Processed != 3 {
		t.Errorf("Processed = %d, want 3", stats.Processed)
	}
	if stats.Succeeded != 1 || stats.TimedOut != 1 || stats.Failed != 1 || stats.Interrupted != 1 {
		t.Errorf("分类统计错误: %+v", stats)
	}
	if stats.Attempts != 8 {
		t.Errorf("Attempts = %d, want 8", stats.Attempts)
	}
}

func TestTaskOutcome_Settled(t *testing.T) {
	if OutcomeInterrupted.Settled() {
		t.Error("interrupted 不应视为已完成")
	}
	for _, o := range []TaskOutcome{OutcomeSucceeded, OutcomeTimedOut, OutcomeFailed} {
		if !o.Settled() {
			t.Errorf("%s 应视为已完成", o)
		}
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	tests := []struct {
		name    string
		input   CliHeaders
		want    map[string]string
		wantErr bool
	}{
		{"单个头部", CliHeaders{"User-Agent: Bot/1.0"}, map[string]string{"User-Agent": "Bot/1.0"}, false},
		{"值包含冒号", CliHeaders{"Referer: https://a.b/x"}, map[string]string{"Referer": "https://a.b/x"}, false},
		{"缺少冒号", CliHeaders{"User-Agent Bot"}, nil, true},
		{"名称为空", CliHeaders{": value"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.input.Parse()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			for name, value := range tt.want {
				if got.Get(name) != value {
					t.Errorf("%s = %q, want %q", name, got.Get(name), value)
				}
			}
		})
	}
}
