package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
)

const (
	DefaultPendingFile = "queue.json"
	DefaultVisitedFile = "seen.json"
)

// FileStore 以两个JSON文件保存检查点
// 每个文件先写入同目录临时文件,同步后重命名覆盖,读者不会看到写了一半的文件
type FileStore struct {
	dir         string
	pendingPath string
	visitedPath string
}

// NewFileStore 创建文件检查点存储,目录不存在时自动创建
func NewFileStore(dir, pendingFile, visitedFile string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("检查点目录不能为空")
	}
	if pendingFile == "" {
		pendingFile = DefaultPendingFile
	}
	if visitedFile == "" {
		visitedFile = DefaultVisitedFile
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建检查点目录失败: %w", err)
	}

	return &FileStore{
		dir:         dir,
		pendingPath: filepath.Join(dir, pendingFile),
		visitedPath: filepath.Join(dir, visitedFile),
	}, nil
}

// Location 检查点目录
func (s *FileStore) Location() string {
	return s.dir
}

// Load 读取检查点,两个文件都不存在时返回空状态
func (s *FileStore) Load(ctx context.Context) (models.FrontierState, error) {
	pending, pendingFound, err := readList(s.pendingPath)
	if err != nil {
		return models.FrontierState{}, err
	}
	visited, visitedFound, err := readList(s.visitedPath)
	if err != nil {
		return models.FrontierState{}, err
	}

	if pendingFound != visitedFound {
		utils.Warnf("检查点不完整,缺失的部分按空列表处理: %s", s.dir)
	}

	state := models.FrontierState{Pending: pending, Visited: visited}.Normalize()
	if pendingFound || visitedFound {
		utils.Debugf("读取检查点: 待处理 %d, 已访问 %d", len(state.Pending), len(state.Visited))
	}
	return state, nil
}

// Save 原子地覆盖两个文件,先写Pending再写Visited
func (s *FileStore) Save(ctx context.Context, state models.FrontierState) error {
	state = state.Normalize()

	if err := writeListAtomic(s.pendingPath, state.Pending); err != nil {
		return err
	}
	return writeListAtomic(s.visitedPath, state.Visited)
}

// Close 文件存储无需释放资源
func (s *FileStore) Close() error {
	return nil
}

// readList 读取URL列表,文件不存在时返回found=false
func readList(path string) (urls []string, found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &models.CheckpointError{Location: path, Cause: err}
	}

	urls, err = models.UnmarshalList(data)
	if err != nil {
		return nil, true, &models.CheckpointError{Location: path, Cause: err}
	}
	return urls, true, nil
}

// writeListAtomic 写入临时文件后重命名
func writeListAtomic(path string, urls []string) error {
	data, err := models.MarshalList(urls)
	if err != nil {
		return fmt.Errorf("序列化检查点失败: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("替换检查点文件失败: %w", err)
	}
	committed = true
	return nil
}
