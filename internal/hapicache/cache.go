// Package hapicache decides, per HAPI request, which cached granules can be
// served, which must be fetched and written through, and how the pieces are
// filtered and stitched into one stream.
package hapicache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/hapi-cache/hapi-cache/internal/cache"
	"github.com/hapi-cache/hapi-cache/internal/hapi"
	"github.com/hapi-cache/hapi-cache/internal/logging"
	"github.com/hapi-cache/hapi-cache/internal/stream"
)

// State 是一次请求在编排状态机中的落点。
type State string

const (
	StateExactHit        State = "exact_hit"
	StateRefillSingle    State = "refill_single"
	StateRefillComposite State = "refill_composite"
	StateMetadata        State = "metadata"
)

// Options 描述 Cache 的依赖。
type Options struct {
	Directive cache.Directive
	Client    *http.Client
	Logger    *logrus.Logger
}

// Cache 是缓存编排器。Directive 在构造时固定，实例可被并发使用。
type Cache struct {
	directive cache.Directive
	store     cache.Store
	client    *http.Client
	logger    *logrus.Logger

	infoGroup singleflight.Group
}

// New 校验 Directive 并准备缓存根目录。
func New(opts Options) (*Cache, error) {
	store, err := cache.NewStore(opts.Directive)
	if err != nil {
		return nil, err
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{
		directive: opts.Directive,
		store:     store,
		client:    client,
		logger:    logger,
	}, nil
}

// Stream 是 Open 打开的响应流，附带解析后的请求与命中状态。
type Stream struct {
	io.ReadCloser
	Request     *hapi.Request
	State       State
	ContentType string
}

type plan struct {
	state     State
	granules  int
	cacheHits int
	fetches   int
}

// Open 解析 rawURL，组装 Provider 链并打开它。格式或查询键错误在任何 I/O 之前返回。
func (c *Cache) Open(ctx context.Context, rawURL string) (*Stream, error) {
	req, err := hapi.ParseRequest(rawURL)
	if err != nil {
		return nil, err
	}

	var (
		body stream.Provider
		p    plan
	)
	if req.Endpoint.IsMetadata() {
		body, p, err = c.planMetadata(ctx, req)
	} else {
		body, p, err = c.planData(ctx, req)
	}
	if err == nil {
		var rc io.ReadCloser
		if rc, err = body.Open(ctx); err == nil {
			Requests.WithLabelValues(string(p.state)).Inc()
			c.logPlan(req, p)
			return &Stream{ReadCloser: rc, Request: req, State: p.state, ContentType: contentType(req)}, nil
		}
	}
	c.logger.WithFields(requestFields(req, p)).WithError(err).Error("hapi_stream_failed")
	return nil, err
}

func (c *Cache) planData(ctx context.Context, req *hapi.Request) (stream.Provider, plan, error) {
	format, err := req.DataFormat()
	if err != nil {
		return nil, plan{}, err
	}
	exact, err := cache.MapPath(req, true, true)
	if err != nil {
		return nil, plan{}, err
	}

	var (
		body stream.Provider
		p    plan
	)
	if len(exact.Granules) == 1 {
		entry, err := c.store.Stat(ctx, exact.Granules[0].Path)
		switch {
		case err == nil && entry.Fresh:
			body = c.cached(entry)
			p = plan{state: StateExactHit, granules: 1, cacheHits: 1}
		case err != nil && !errors.Is(err, cache.ErrNotFound):
			return nil, plan{}, err
		}
	}

	if body == nil {
		hit, err := cache.MapPath(req, false, true)
		if err != nil {
			return nil, plan{}, err
		}
		if len(hit.Granules) == 1 && !hit.SubsetTime && !hit.SubsetParameters {
			body = c.refill(hit.Granules[0])
			p = plan{state: StateRefillSingle, granules: 1, fetches: 1}
		} else {
			body, p, err = c.planComposite(ctx, req, format, hit)
			if err != nil {
				return nil, p, err
			}
		}
	}

	if req.IncludeHeader() {
		header, err := c.header(ctx, req)
		if err != nil {
			return nil, p, err
		}
		return stream.Prefix(stream.Header(stream.Bytes(header)), stream.Prime(body)), p, nil
	}
	return stream.Prime(body), p, nil
}

// planComposite 逐日组装颗粒。数据请求按参数名精确映射文件，MapPath 目前不会
// 返回 SubsetParameters=true；列裁剪分支留给将来按参数超集命中的映射。
func (c *Cache) planComposite(ctx context.Context, req *hapi.Request, format hapi.Format, hit cache.Hit) (stream.Provider, plan, error) {
	p := plan{state: StateRefillComposite, granules: len(hit.Granules)}
	start, err := hapi.ParseTime(req.Start)
	if err != nil {
		return nil, p, err
	}
	stop, err := hapi.ParseTime(req.Stop)
	if err != nil {
		return nil, p, err
	}

	var info []byte
	if format == hapi.FormatBinary || hit.SubsetParameters {
		if info, err = c.loadInfo(ctx, req); err != nil {
			return nil, p, err
		}
	}
	var recordLen, timeLen int
	if format == hapi.FormatBinary {
		if recordLen, err = hapi.BytesPerRecord(info); err != nil {
			return nil, p, err
		}
		if timeLen, err = hapi.TimeLength(info); err != nil {
			return nil, p, err
		}
	}

	parts := make([]stream.Provider, 0, len(hit.Granules))
	for _, g := range hit.Granules {
		src, cached, err := c.granule(ctx, g)
		if err != nil {
			return nil, p, err
		}
		if cached {
			p.cacheHits++
		} else {
			p.fetches++
		}
		if hit.SubsetTime {
			if format == hapi.FormatBinary {
				src = stream.BinaryTimeSubset(src, start, stop, recordLen, timeLen)
			} else {
				src = stream.CSVTimeSubset(src, start, stop)
			}
		}
		if hit.SubsetParameters {
			if src, err = c.subsetParameters(req, format, info, src); err != nil {
				return nil, p, err
			}
		}
		parts = append(parts, src)
	}
	return stream.Concat(parts...), p, nil
}

// subsetParameters 对 CSV 记录按列裁剪；二进制负载不做字段级裁剪，原样通过。
func (c *Cache) subsetParameters(req *hapi.Request, format hapi.Format, info []byte, src stream.Provider) (stream.Provider, error) {
	if format == hapi.FormatBinary {
		c.logger.WithFields(requestFields(req, plan{})).Warn("binary_parameter_subset_unsupported")
		return src, nil
	}
	columns, err := hapi.ColumnIndices(info, req.ParameterNames())
	if err != nil {
		return nil, err
	}
	return stream.CSVParameterSubset(src, columns), nil
}

func (c *Cache) planMetadata(ctx context.Context, req *hapi.Request) (stream.Provider, plan, error) {
	hit, err := cache.MapPath(req, true, req.Parameters == "")
	if err != nil {
		return nil, plan{}, err
	}
	p := plan{state: StateMetadata, granules: 1}

	if req.Endpoint == hapi.EndpointInfo && hit.SubsetParameters {
		info, err := c.loadInfo(ctx, req)
		if err != nil {
			return nil, p, err
		}
		filtered, err := hapi.SubsetHeader(info, req.ParameterNames())
		if err != nil {
			return nil, p, err
		}
		return stream.Bytes(filtered), p, nil
	}

	src, cached, err := c.granule(ctx, hit.Granules[0])
	if err != nil {
		return nil, p, err
	}
	if cached {
		p.cacheHits = 1
	} else {
		p.fetches = 1
	}
	return src, p, nil
}

// granule 返回新鲜缓存文件的 Provider（cached=true），否则返回回填 Provider。
func (c *Cache) granule(ctx context.Context, g cache.Granule) (stream.Provider, bool, error) {
	entry, err := c.store.Stat(ctx, g.Path)
	switch {
	case err == nil && entry.Fresh:
		return c.cached(entry), true, nil
	case err != nil && !errors.Is(err, cache.ErrNotFound):
		return nil, false, err
	}
	return c.refill(g), false, nil
}

func (c *Cache) cached(entry *cache.Entry) stream.Provider {
	GranuleHits.Inc()
	return stream.File(entry.FilePath)
}

// refill 在持有路径锁的情况下把远端响应 tee 进缓存文件。拿到锁后若文件已被
// 其他请求填充为新鲜状态则直接读文件。允许时远端失败退回到过期文件。
func (c *Cache) refill(g cache.Granule) stream.Provider {
	fill := stream.ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		unlock, err := c.store.Lock(g.Path)
		if err != nil {
			return nil, err
		}
		if entry, err := c.store.Stat(ctx, g.Path); err == nil && entry.Fresh {
			unlock()
			return c.cached(entry).Open(ctx)
		}

		sink := func(ctx context.Context) (stream.Sink, error) {
			pending, err := c.store.Create(ctx, g.Path)
			if err != nil {
				return nil, err
			}
			return pending, nil
		}
		rc, err := stream.Tee(stream.Remote(c.client, g.URL), sink, func(written int64, err error) {
			unlock()
			c.recordFetch(g, written, err)
		}).Open(ctx)
		if err != nil {
			unlock()
			RemoteFetches.WithLabelValues("error").Inc()
			return nil, err
		}
		return rc, nil
	})

	if !c.directive.UseStaleIfError {
		return fill
	}
	stale := stream.ProviderFunc(func(ctx context.Context) (io.ReadCloser, error) {
		res, err := c.store.Get(ctx, g.Path)
		if err != nil {
			return nil, err
		}
		StaleFallbacks.Inc()
		return res.Reader, nil
	})
	return stream.Fallback(fill, stale, func(err error) {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"url":  g.URL,
			"path": g.Path,
		}).Warn("hapi_stale_fallback")
	})
}

func (c *Cache) recordFetch(g cache.Granule, written int64, err error) {
	fields := logrus.Fields{"url": g.URL, "path": g.Path, "bytes": written}
	if err != nil {
		RemoteFetches.WithLabelValues("error").Inc()
		c.logger.WithError(err).WithFields(fields).Warn("hapi_cache_fill_failed")
		return
	}
	RemoteFetches.WithLabelValues("ok").Inc()
	BytesWritten.Add(float64(written))
	c.logger.WithFields(fields).Debug("hapi_cache_filled")
}

// loadInfo 返回数据集完整的 info 描述，经由缓存读取或回填；同一文件的并发加载合并为一次。
func (c *Cache) loadInfo(ctx context.Context, req *hapi.Request) ([]byte, error) {
	infoReq, err := hapi.ParseRequest(req.InfoURL())
	if err != nil {
		return nil, err
	}
	hit, err := cache.MapPath(infoReq, true, true)
	if err != nil {
		return nil, err
	}
	g := hit.Granules[0]
	v, err, _ := c.infoGroup.Do(g.Path, func() (any, error) {
		src, _, err := c.granule(ctx, g)
		if err != nil {
			return nil, err
		}
		rc, err := src.Open(ctx)
		if err != nil {
			return nil, err
		}
		body, readErr := io.ReadAll(rc)
		if closeErr := rc.Close(); readErr == nil {
			readErr = closeErr
		}
		return body, readErr
	})
	if err != nil {
		return nil, fmt.Errorf("load info for %s: %w", req.Dataset, err)
	}
	return v.([]byte), nil
}

func (c *Cache) header(ctx context.Context, req *hapi.Request) ([]byte, error) {
	info, err := c.loadInfo(ctx, req)
	if err != nil {
		return nil, err
	}
	return hapi.SubsetHeader(info, req.ParameterNames())
}

func (c *Cache) logPlan(req *hapi.Request, p plan) {
	fields := requestFields(req, p)
	fields["action"] = "hapi_open"
	fields["granules"] = p.granules
	fields["cache_hits"] = p.cacheHits
	fields["remote_fetches"] = p.fetches
	c.logger.WithFields(fields).Info("hapi_stream_open")
}

func requestFields(req *hapi.Request, p plan) logrus.Fields {
	fields := logging.RequestFields(req.Dataset, string(req.Endpoint), req.Format, string(p.state))
	fields["url"] = req.String()
	return fields
}

func contentType(req *hapi.Request) string {
	if req.Endpoint.IsMetadata() {
		return "application/json"
	}
	if f, _ := req.DataFormat(); f == hapi.FormatBinary {
		return "application/octet-stream"
	}
	return "text/csv"
}
