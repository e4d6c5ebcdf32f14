package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Provider 产出一个新的可读字节流。文件与 URL 类实现可以重复打开，
// 组合类实现把可重复性委托给下层。
type Provider interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// ProviderFunc 让普通函数满足 Provider。
type ProviderFunc func(ctx context.Context) (io.ReadCloser, error)

func (f ProviderFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// ErrRemoteStatus 表示远端返回了非 200 状态。
var ErrRemoteStatus = errors.New("remote returned non-200 status")

// Bytes 返回内存中固定内容的 Provider。
func Bytes(b []byte) Provider {
	return ProviderFunc(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	})
}

// File 在 Open 时才打开 path。
func File(path string) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.Open(path)
	})
}

// Remote 在 Open 时对 url 发起 GET。非 200 响应视为失败，正文被丢弃。
func Remote(client *http.Client, url string) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s: %d", ErrRemoteStatus, url, resp.StatusCode)
		}
		return resp.Body, nil
	})
}

// Fallback 先打开 primary，失败且 secondary 非空时改为打开 secondary，
// 并通过 onFallback 报告 primary 的错误。只处理打开阶段的失败。
func Fallback(primary, secondary Provider, onFallback func(error)) Provider {
	return ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		rc, err := primary.Open(ctx)
		if err == nil || secondary == nil {
			return rc, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if onFallback != nil {
			onFallback(err)
		}
		rc, fbErr := secondary.Open(ctx)
		if fbErr != nil {
			return nil, errors.Join(err, fbErr)
		}
		return rc, nil
	})
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
