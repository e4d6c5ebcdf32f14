package stream

import (
	"bufio"
	"context"
	"io"
)

// Prime 打开 src 并预读一个字节。Concat 等惰性组合只在首次 Read 时才打开
// 第一个分片，Prime 让这类打开错误在 Open 阶段返回。空流不是错误。
func Prime(src Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		br := bufio.NewReaderSize(rc, readBufferSize)
		if _, err := br.Peek(1); err != nil && err != io.EOF {
			rc.Close()
			return nil, err
		}
		return &joinedReader{Reader: br, closers: []io.Closer{rc}}, nil
	})
}

// Prefix 先打开 body 再打开 head，读取时 head 在前。body 的打开错误因此早于
// head 的任何字节返回。
func Prefix(head, body Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		b, err := body.Open(ctx)
		if err != nil {
			return nil, err
		}
		h, err := head.Open(ctx)
		if err != nil {
			b.Close()
			return nil, err
		}
		return &joinedReader{Reader: io.MultiReader(h, b), closers: []io.Closer{h, b}}, nil
	})
}

type joinedReader struct {
	io.Reader
	closers []io.Closer
}

func (j *joinedReader) Close() error {
	var first error
	for _, c := range j.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	j.closers = nil
	return first
}
