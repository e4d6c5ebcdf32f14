package stream

import (
	"context"
	"errors"
	"io"
)

// Sink 是 tee 的写入端：Commit 使写入可见，Abort 丢弃。
type Sink interface {
	io.Writer
	Commit() error
	Abort() error
}

// SinkFunc 在 tee 打开时创建写入端。
type SinkFunc func(ctx context.Context) (Sink, error)

// TeeDone 在 tee 结束时被调用一次，报告写入字节数与最终结果（nil 表示已提交）。
type TeeDone func(written int64, err error)

// Tee 把 src 的每个字节同时交给调用方和 sink。调用方提前 Close 时剩余内容
// 会被读完写入 sink，保证缓存文件完整；任何读写失败都会 Abort。
func Tee(src Provider, open SinkFunc, done TeeDone) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		sink, err := open(ctx)
		if err != nil {
			rc.Close()
			return nil, err
		}
		return &teeReader{ctx: ctx, src: rc, sink: sink, done: done}, nil
	})
}

type teeReader struct {
	ctx     context.Context
	src     io.ReadCloser
	sink    Sink
	done    TeeDone
	written int64

	finished bool
	err      error
}

func (t *teeReader) Read(p []byte) (int, error) {
	if t.finished {
		if t.err != nil {
			return 0, t.err
		}
		return 0, io.EOF
	}
	n, err := t.src.Read(p)
	if n > 0 {
		if _, wErr := t.sink.Write(p[:n]); wErr != nil {
			t.finish(wErr)
			return n, wErr
		}
		t.written += int64(n)
	}
	switch {
	case errors.Is(err, io.EOF):
		if t.finish(nil); t.err != nil {
			return n, t.err
		}
	case err != nil:
		t.finish(err)
	}
	return n, err
}

// Close 读完并提交剩余内容后关闭源。
func (t *teeReader) Close() error {
	if !t.finished {
		n, err := copyWithContext(t.ctx, t.sink, t.src)
		t.written += n
		t.finish(err)
	}
	closeErr := t.src.Close()
	if t.err != nil {
		return t.err
	}
	return closeErr
}

func (t *teeReader) finish(err error) {
	if t.finished {
		return
	}
	t.finished = true
	if err == nil {
		err = t.sink.Commit()
	} else {
		t.sink.Abort()
	}
	t.err = err
	if t.done != nil {
		t.done(t.written, err)
	}
}
