package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/RecoveryAshes/scopecrawl/internal/utils"
)

// MaxPathLength 输出文件完整路径的长度上限
const MaxPathLength = 250

// 同名文件的最大后缀序号
const maxCollisionSuffix = 10000

var (
	reservedChars = regexp.MustCompile(`[?<>:"/\\|*]`)
	unsafeChars   = regexp.MustCompile(`[^a-zA-Z0-9_\-.]`)
)

// FileSink 每个页面保存为一个txt文件
type FileSink struct {
	baseDir string
	// 从URL中去掉的公共部分: <scheme>://<domain><pathPrefix>
	trimPrefix string
}

// NewFileSink 创建文件存储,目录不存在时自动创建
// scheme为空时按https处理
func NewFileSink(baseDir, scheme, domain, pathPrefix string) (*FileSink, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	if scheme == "" {
		scheme = "https"
	}
	return &FileSink{
		baseDir:    baseDir,
		trimPrefix: scheme + "://" + domain + pathPrefix,
	}, nil
}

// OutputDir 默认输出目录: <root>/<域名中的.替换为_>
func OutputDir(root, domain string) string {
	return filepath.Join(root, strings.ReplaceAll(domain, ".", "_"))
}

// SanitizeFilename 将URL转换为文件名(不含扩展名)
func SanitizeFilename(pageURL, trimPrefix string) string {
	name := strings.TrimPrefix(pageURL, trimPrefix)
	name = strings.TrimLeft(name, "/")
	name = reservedChars.ReplaceAllString(name, "_")
	name = unsafeChars.ReplaceAllString(name, "")
	if name == "" {
		name = "index"
	}
	return name
}

// Path 计算URL对应的文件路径(不考虑重名)
func (s *FileSink) Path(pageURL string) (string, error) {
	name := SanitizeFilename(pageURL, s.trimPrefix)
	budget := MaxPathLength - len(filepath.Join(s.baseDir, ".txt"))
	if budget < 1 {
		return "", fmt.Errorf("输出目录路径过长: %s", s.baseDir)
	}
	if len(name) > budget {
		name = name[:budget]
	}
	return filepath.Join(s.baseDir, name+".txt"), nil
}

// Store 写入页面文本,文件已存在时追加 _1, _2 ... 后缀
func (s *FileSink) Store(ctx context.Context, pageURL string, text string) error {
	path, err := s.Path(pageURL)
	if err != nil {
		return err
	}

	file, claimed, err := claimFile(path)
	if err != nil {
		return err
	}
	if err := writeAndClose(file, text); err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", claimed, err)
	}
	utils.Debugf("保存页面文本: %s -> %s", pageURL, claimed)
	return nil
}

// writeAndClose 写入后关闭,关闭失败同样视为写入失败
func writeAndClose(w io.WriteCloser, text string) error {
	if _, err := io.WriteString(w, text); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Close 文件存储无需释放资源
func (s *FileSink) Close() error {
	return nil
}

// claimFile 以独占方式创建文件,并发的worker不会写入同一个文件
func claimFile(path string) (*os.File, string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	candidate := path
	for i := 1; i <= maxCollisionSuffix; i++ {
		file, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return file, candidate, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("创建文件失败 [%s]: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	return nil, "", fmt.Errorf("同名文件过多: %s", path)
}
