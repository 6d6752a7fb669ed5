package crawlers

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/RecoveryAshes/scopecrawl/internal/models"
	"github.com/RecoveryAshes/scopecrawl/internal/utils"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// 单个标签页平均内存消耗
	defaultTabMemoryUsage = 100 * 1024 * 1024

	// 未配置时的CPU负载阈值(%)
	defaultCPULoadThreshold = 80

	// 计算结果缓存时间
	maxTabsCacheTTL = time.Second
)

// ResourceMonitor 系统资源监控器
// 职责: 采样系统可用内存与CPU使用率,计算浏览器标签页上限
type ResourceMonitor struct {
	config ResourceMonitorConfig

	mu           sync.RWMutex
	availableMem uint64  // 最近一次采样的系统可用内存(字节)
	cpuUsage     float64 // 最近一次采样的CPU使用率(%)

	cacheMu       sync.Mutex
	cachedMaxTabs int
	lastCacheTime time.Time

	cancel context.CancelFunc

	// 采样函数
	sampleMem func() (uint64, error)
	sampleCPU func() (float64, error)
}

// ResourceMonitorConfig 资源监控器配置(字节)
type ResourceMonitorConfig struct {
	SafetyReserveMemory int64 // 保留给系统的内存
	SafetyThreshold     int64 // 低于此可用内存时不再创建标签页
	CPULoadThreshold    int   // CPU负载阈值(%),0使用默认值,>=200视为禁用
	MaxTabsLimit        int   // 绝对最大标签页数
	TabMemoryUsage      int64 // 单个标签页平均内存消耗
}

// ResourceMonitorConfigFrom 从MB单位的配置转换
func ResourceMonitorConfigFrom(rc models.ResourceConfig) ResourceMonitorConfig {
	return ResourceMonitorConfig{
		SafetyReserveMemory: int64(rc.SafetyReserveMemory) * 1024 * 1024,
		SafetyThreshold:     int64(rc.SafetyThreshold) * 1024 * 1024,
		CPULoadThreshold:    rc.CPULoadThreshold,
		MaxTabsLimit:        rc.MaxTabsLimit,
	}
}

// NewResourceMonitor 创建资源监控器并立即采样一次
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	return newResourceMonitor(config, systemAvailableMemory, systemCPUUsage)
}

func newResourceMonitor(config ResourceMonitorConfig, sampleMem func() (uint64, error), sampleCPU func() (float64, error)) *ResourceMonitor {
	if config.TabMemoryUsage <= 0 {
		config.TabMemoryUsage = defaultTabMemoryUsage
	}
	if config.MaxTabsLimit <= 0 {
		config.MaxTabsLimit = runtime.NumCPU()
	}
	if config.CPULoadThreshold <= 0 {
		config.CPULoadThreshold = defaultCPULoadThreshold
	}

	rm := &ResourceMonitor{
		config:    config,
		sampleMem: sampleMem,
		sampleCPU: sampleCPU,
	}
	rm.sample()
	utils.Debugf("系统可用内存: %.2f GB", float64(rm.usableMemory()+config.SafetyReserveMemory)/(1024*1024*1024))
	return rm
}

// systemAvailableMemory 通过gopsutil获取系统可用内存
func systemAvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// systemCPUUsage 所有核心的平均CPU使用率(100毫秒采样)
func systemCPUUsage() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, fmt.Errorf("CPU使用率数据为空")
	}
	return percentages[0], nil
}

// StartMonitoring 启动后台周期采样,重复调用无副作用
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rm.sample()
			}
		}
	}()
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.cancel != nil {
		rm.cancel()
		rm.cancel = nil
	}
}

// sample 采样内存与CPU,失败时保留上一次的值
func (rm *ResourceMonitor) sample() {
	available, memErr := rm.sampleMem()
	usage, cpuErr := rm.sampleCPU()

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if memErr != nil {
		utils.Warnf("获取系统内存失败: %v", memErr)
	} else {
		rm.availableMem = available
	}
	if cpuErr != nil {
		utils.Debugf("获取CPU使用率失败: %v", cpuErr)
	} else {
		rm.cpuUsage = usage
	}
}

// usableMemory 扣除保留内存后的可用内存
func (rm *ResourceMonitor) usableMemory() int64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return int64(rm.availableMem) - rm.config.SafetyReserveMemory
}

// CalculateMaxTabs 当前允许的最大标签页数,结果缓存1秒
// 取 内存可承载数、CPU核数、配置上限 三者最小值,至少为1
func (rm *ResourceMonitor) CalculateMaxTabs() int {
	rm.cacheMu.Lock()
	defer rm.cacheMu.Unlock()
	if rm.cachedMaxTabs > 0 && time.Since(rm.lastCacheTime) < maxTabsCacheTTL {
		return rm.cachedMaxTabs
	}

	byMemory := 1
	if surplus := rm.usableMemory() - rm.config.SafetyThreshold; surplus > 0 {
		byMemory = int(surplus / rm.config.TabMemoryUsage)
	}

	result := min(byMemory, runtime.NumCPU(), rm.config.MaxTabsLimit)
	if result < 1 {
		result = 1
	}

	rm.cachedMaxTabs = result
	rm.lastCacheTime = time.Now()
	return result
}

// CheckResourceAvailability 是否允许再创建一个标签页
func (rm *ResourceMonitor) CheckResourceAvailability() (canCreate bool, reason string) {
	if usable := rm.usableMemory(); usable < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(当前%dMB)", usable/(1024*1024))
	}

	if rm.config.CPULoadThreshold < 200 {
		rm.mu.RLock()
		usage := rm.cpuUsage
		rm.mu.RUnlock()
		if usage > float64(rm.config.CPULoadThreshold) {
			return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", usage)
		}
	}

	return true, ""
}
