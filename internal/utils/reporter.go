package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 报告生成器
type Reporter struct {
	reportDir string
}

// NewReporter 创建报告生成器
func NewReporter(reportDir string) *Reporter {
	return &Reporter{reportDir: reportDir}
}

// GenerateReport 写入 crawl_report.json 与 failed_pages.json
func (r *Reporter) GenerateReport(report *models.CrawlReport) error {
	if err := os.MkdirAll(r.reportDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %w", err)
	}

	if report.FailedPages == nil {
		report.FailedPages = []models.FailedPageInfo{}
	}

	if err := r.saveJSONReport("crawl_report.json", report); err != nil {
		return err
	}
	if err := r.saveJSONReport("failed_pages.json", report.FailedPages); err != nil {
		return err
	}

	Infof("📝 报告已生成: %s", r.reportDir)
	return nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(filename string, data interface{}) error {
	path := filepath.Join(r.reportDir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewProgressBar 创建进度条,max为-1时显示为无总数的计数器
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("页"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
