package cache

import (
	"errors"
	"time"
)

// Directive 是单次调用的缓存策略，构造后不再修改，沿调用链显式传递。
type Directive struct {
	// RootDir 是缓存根目录。
	RootDir string
	// StaleAfter 为相对阈值：早于 now-StaleAfter 写入的文件视为过期。
	StaleAfter time.Duration
	// StaleBefore 为绝对阈值：早于该时刻写入的文件视为过期。与 StaleAfter 互斥。
	StaleBefore time.Time
	// UseStaleIfError 允许远端失败时退回到过期文件。
	UseStaleIfError bool
}

// Validate 检查互斥条件与必填字段。
func (d Directive) Validate() error {
	if d.RootDir == "" {
		return errors.New("cache root directory required")
	}
	if d.StaleAfter < 0 {
		return errors.New("stale-after must not be negative")
	}
	if d.StaleAfter > 0 && !d.StaleBefore.IsZero() {
		return errors.New("relative and absolute freshness thresholds are mutually exclusive")
	}
	return nil
}

// IsFresh 报告 modTime 写入的文件在 now 时刻是否仍可直接使用；未设置阈值时总是新鲜。
func (d Directive) IsFresh(modTime, now time.Time) bool {
	switch {
	case d.StaleAfter > 0:
		return !modTime.Before(now.Add(-d.StaleAfter))
	case !d.StaleBefore.IsZero():
		return !modTime.Before(d.StaleBefore)
	default:
		return true
	}
}
