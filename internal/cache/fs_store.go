package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// NewStore 以 directive.RootDir 为根构建磁盘缓存，根目录不存在时创建。
func NewStore(directive Directive) (Store, error) {
	if err := directive.Validate(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(directive.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	return &fileStore{
		basePath:  abs,
		directive: directive,
		now:       time.Now,
		locks:     make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一路径并发填充。
type fileStore struct {
	basePath  string
	directive Directive
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Root() string {
	return s.basePath
}

func (s *fileStore) Stat(ctx context.Context, rel string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.entryPath(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}
	return &Entry{
		Path:      rel,
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		Fresh:     s.directive.IsFresh(info.ModTime(), s.now()),
	}, nil
}

func (s *fileStore) Get(ctx context.Context, rel string) (*ReadResult, error) {
	entry, err := s.Stat(ctx, rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(entry.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ReadResult{Entry: *entry, Reader: f}, nil
}

func (s *fileStore) Create(ctx context.Context, rel string) (*PendingFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.entryPath(rel)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, err
	}
	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return nil, err
	}
	return &PendingFile{file: tempFile, target: filePath}, nil
}

func (s *fileStore) Lock(rel string) (func(), error) {
	key, err := s.entryPath(rel)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}, nil
}

func (s *fileStore) entryPath(rel string) (string, error) {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		return "", errors.New("empty cache path")
	}
	filePath := filepath.Join(s.basePath, filepath.FromSlash(rel))
	if !strings.HasPrefix(filePath, s.basePath+string(filepath.Separator)) {
		return "", errors.New("invalid cache path")
	}
	return filePath, nil
}

// PendingFile 是尚未提交的缓存写入。
type PendingFile struct {
	file   *os.File
	target string
	done   bool
}

func (p *PendingFile) Write(b []byte) (int, error) {
	return p.file.Write(b)
}

// Commit 关闭临时文件并原子替换目标文件。
func (p *PendingFile) Commit() error {
	if p.done {
		return errors.New("pending file already finished")
	}
	p.done = true
	tempName := p.file.Name()
	if err := p.file.Close(); err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, p.target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// Abort 丢弃临时文件，目标文件保持原样。重复调用无副作用。
func (p *PendingFile) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	p.file.Close()
	if err := os.Remove(p.file.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
