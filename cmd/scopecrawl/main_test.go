package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/RecoveryAshes/scopecrawl/internal/core"
	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name       string
		workers    int
		maxRetries int
		timeout    int
		mode       string
		wantErr    bool
	}{
		{"默认值", 4, 3, 60, "dynamic", false},
		{"静态模式", 1, 0, 1, "static", false},
		{"worker为0", 0, 3, 60, "dynamic", true},
		{"重试为负数", 4, -1, 60, "dynamic", true},
		{"超时过长", 4, 3, 601, "dynamic", true},
		{"未知模式", 4, 3, 60, "all", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlags(tt.workers, tt.maxRetries, tt.timeout, tt.mode)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFlags() 错误 = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCollectSeeds(t *testing.T) {
	file := filepath.Join(t.TempDir(), "seeds.txt")
	content := "# 种子\nhttps://a.com/docs/\n\nhttps://a.com/docs/b\n"
	if err := os.WriteFile(file, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := collectSeeds([]string{"https://a.com/docs/", "https://a.com/docs/a"}, file)
	if err != nil {
		t.Fatalf("collectSeeds() 错误: %v", err)
	}
	want := []string{"https://a.com/docs/", "https://a.com/docs/a", "https://a.com/docs/b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("collectSeeds() = %v, 期望 %v", got, want)
	}

	if _, err := collectSeeds([]string{"a.com/docs"}, ""); err == nil {
		t.Error("缺少协议的URL应返回错误")
	}
	if _, err := collectSeeds(nil, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("URL文件不存在时应返回错误")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Run("只覆盖显式指定的参数", func(t *testing.T) {
		config := &core.Config{Crawl: models.CrawlConfig{Workers: 6, Mode: models.ModeStatic, Timeout: 30}}
		if err := rootCmd.ParseFlags([]string{"--workers", "2", "--redis", "10.0.0.1:6379"}); err != nil {
			t.Fatal(err)
		}

		applyFlagOverrides(rootCmd, config)

		if config.Crawl.Workers != 2 {
			t.Errorf("Workers = %d, 期望命令行的 2", config.Crawl.Workers)
		}
		if config.Crawl.Mode != models.ModeStatic || mode != "static" {
			t.Errorf("未指定 --mode 时应保留配置文件的值, 实际 %s", config.Crawl.Mode)
		}
		if config.Crawl.Timeout != 30 {
			t.Errorf("Timeout = %d", config.Crawl.Timeout)
		}
		if config.Checkpoint.Backend != "redis" || config.Checkpoint.RedisAddr != "10.0.0.1:6379" {
			t.Errorf("检查点 = %+v", config.Checkpoint)
		}
	})
}

func TestQueueHead(t *testing.T) {
	pending := []string{"a", "b", "c"}
	tests := []struct {
		name string
		n    int
		want int
	}{
		{"前两项", 2, 2},
		{"超过长度", 10, 3},
		{"全部", -1, 3},
		{"零项", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := queueHead(pending, tt.n); len(got) != tt.want {
				t.Errorf("queueHead(%d) 长度 = %d, 期望 %d", tt.n, len(got), tt.want)
			}
		})
	}
}
