package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
)

// ReadURLsFromFile 从文件中读取URL列表
func ReadURLsFromFile(filepath string) ([]string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	urls := make([]string, 0)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释行
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// 验证URL格式
		if err := ValidateURL(line); err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			continue
		}

		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的URL")
	}

	Infof("从文件加载了 %d 个URL", len(urls))
	return urls, nil
}

// ValidateURL 验证URL格式
func ValidateURL(rawURL string) error {
	return models.ValidateURL(rawURL)
}

// MergeSeeds 合并命令行与文件中的种子URL,去重并保持顺序
func MergeSeeds(lists ...[]string) []string {
	seen := make(map[string]bool)
	var seeds []string
	for _, list := range lists {
		for _, u := range list {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			seeds = append(seeds, u)
		}
	}
	return seeds
}
