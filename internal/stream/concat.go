package stream

import (
	"context"
	"io"
)

// Concat 依次打开并读完每个 Provider。后续 Provider 只在前一个读到 EOF 后才打开，
// 提前 Close 时未打开的 Provider 不会被触碰。
func Concat(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		return &concatReader{ctx: ctx, providers: providers}, nil
	})
}

type concatReader struct {
	ctx       context.Context
	providers []Provider
	next      int
	cur       io.ReadCloser
}

func (c *concatReader) Read(p []byte) (int, error) {
	for {
		if c.cur == nil {
			if c.next >= len(c.providers) {
				return 0, io.EOF
			}
			rc, err := c.providers[c.next].Open(c.ctx)
			c.next++
			if err != nil {
				c.next = len(c.providers)
				return 0, err
			}
			c.cur = rc
		}
		n, err := c.cur.Read(p)
		if err == io.EOF {
			closeErr := c.cur.Close()
			c.cur = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *concatReader) Close() error {
	c.next = len(c.providers)
	if c.cur == nil {
		return nil
	}
	err := c.cur.Close()
	c.cur = nil
	return err
}
