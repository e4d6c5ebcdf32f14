package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 管理缓存根目录下的颗粒文件。路径均为相对根目录的 slash 风格，
// 与 MapPath 产出的 Granule.Path 一致。
type Store interface {
	// Stat 返回条目信息并按 Directive 判定新鲜度。不存在时返回 ErrNotFound。
	Stat(ctx context.Context, rel string) (*Entry, error)

	// Get 打开一个可流式读取的缓存条目。不存在时返回 ErrNotFound。
	Get(ctx context.Context, rel string) (*ReadResult, error)

	// Create 在目标目录中创建临时文件，Commit 时 rename 到 rel，Abort 时删除。
	// 目标文件在 Commit 之前对读者不可见。
	Create(ctx context.Context, rel string) (*PendingFile, error)

	// Lock 串行化同一路径上的填充，返回的函数释放锁。
	Lock(rel string) (func(), error)

	// Root 返回缓存根目录的绝对路径。
	Root() string
}

// Entry 表示一个已存在的缓存文件。
type Entry struct {
	Path      string
	FilePath  string
	SizeBytes int64
	ModTime   time.Time
	Fresh     bool
}

// ReadResult 组合 Entry 与正文 Reader。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
