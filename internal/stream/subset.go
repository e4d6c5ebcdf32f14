package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hapi-cache/hapi-cache/internal/hapi"
)

const readBufferSize = 64 * 1024

// CSVTimeSubset 只保留时间戳落在 [start, stop) 内的 CSV 记录。不以四位年份开头的
// 行原样通过；遇到第一条 >= stop 的记录后流结束。边界在读到第一条记录时按其
// 精度格式化一次，之后逐字节比较。
func CSVTimeSubset(src Provider, start, stop time.Time) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		br := bufio.NewReaderSize(rc, readBufferSize)
		return &timeFilter{
			src:   rc,
			start: start,
			stop:  stop,
			next:  func() ([]byte, error) { return br.ReadBytes('\n') },
			stamp: csvStamp,
		}, nil
	})
}

// BinaryTimeSubset 以 recordLen 字节为单位读取定长记录，前 timeLen 字节为时间戳，
// 过滤规则与 CSVTimeSubset 相同。
func BinaryTimeSubset(src Provider, start, stop time.Time, recordLen, timeLen int) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		if recordLen <= 0 || timeLen <= 0 || timeLen > recordLen {
			return nil, fmt.Errorf("%w: record length %d, time length %d", hapi.ErrMalformedInfo, recordLen, timeLen)
		}
		rc, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		br := bufio.NewReaderSize(rc, readBufferSize)
		record := make([]byte, recordLen)
		return &timeFilter{
			src:   rc,
			start: start,
			stop:  stop,
			next: func() ([]byte, error) {
				n, err := io.ReadFull(br, record)
				switch err {
				case nil:
					return record, nil
				case io.EOF:
					return nil, io.EOF
				case io.ErrUnexpectedEOF:
					return nil, fmt.Errorf("truncated binary record: %d of %d bytes", n, recordLen)
				default:
					return nil, err
				}
			},
			stamp: func(rec []byte) ([]byte, bool) { return rec[:timeLen], true },
		}, nil
	})
}

func csvStamp(line []byte) ([]byte, bool) {
	if !hapi.IsRecordStart(line) {
		return nil, false
	}
	if i := bytes.IndexAny(line, ",\r\n"); i >= 0 {
		return line[:i], true
	}
	return line, true
}

// timeFilter 逐单元（行或定长记录）读取，pending 中的数据在下一次 next 前必须耗尽。
type timeFilter struct {
	src         io.ReadCloser
	start, stop time.Time
	next        func() ([]byte, error)
	stamp       func([]byte) ([]byte, bool)

	lo, hi  []byte
	pending []byte
	done    bool
	err     error
}

func (f *timeFilter) Read(p []byte) (int, error) {
	for len(f.pending) == 0 {
		if f.done {
			if f.err != nil {
				return 0, f.err
			}
			return 0, io.EOF
		}
		unit, err := f.next()
		if len(unit) > 0 && f.keep(unit) {
			f.pending = unit
		}
		if err != nil {
			f.done = true
			if err != io.EOF {
				f.err = err
				f.pending = nil
			}
		}
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *timeFilter) keep(unit []byte) bool {
	stamp, isRecord := f.stamp(unit)
	if !isRecord {
		return true
	}
	if f.lo == nil {
		example := string(stamp)
		f.lo = []byte(hapi.Reformat(example, f.start))
		f.hi = []byte(hapi.Reformat(example, f.stop))
	}
	if bytes.Compare(stamp, f.lo) < 0 {
		return false
	}
	if bytes.Compare(stamp, f.hi) >= 0 {
		f.done = true
		return false
	}
	return true
}

// Close 只关闭源。tee 源在自己的 Close 中补完缓存写入，缓存文件源无需读完。
func (f *timeFilter) Close() error {
	return f.src.Close()
}
