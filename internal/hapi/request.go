package hapi

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	// ErrMalformedRequest 表示 URL 无法被识别为 HAPI 请求。
	ErrMalformedRequest = errors.New("malformed hapi request")
	// ErrUnsupportedKey 表示查询串中出现了未知的键。
	ErrUnsupportedKey = errors.New("unsupported query key")
	// ErrUnsupportedFormat 表示 format 既不是 csv 也不是 binary。
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrUnsupportedEndpoint 表示路径末段不是 data/info/catalog/capabilities/about。
	ErrUnsupportedEndpoint = errors.New("unsupported hapi endpoint")
)

// Endpoint 是 HAPI 路径的最后一段。
type Endpoint string

const (
	EndpointData         Endpoint = "data"
	EndpointInfo         Endpoint = "info"
	EndpointCatalog      Endpoint = "catalog"
	EndpointCapabilities Endpoint = "capabilities"
	EndpointAbout        Endpoint = "about"
)

// IsMetadata 报告该端点是否返回 JSON 元数据（没有时间轴）。
func (e Endpoint) IsMetadata() bool {
	return e != EndpointData
}

// Format 是数据流的序列化方式。
type Format string

const (
	FormatCSV    Format = "csv"
	FormatBinary Format = "binary"
	FormatJSON   Format = "json"
)

// queryPair 保留原始查询串中的键值（未解码），重写子请求时按原顺序输出。
type queryPair struct {
	key      string
	value    string
	hasValue bool
}

// Request 是一次 HAPI 调用的只读描述，由 ParseRequest 构造后不再修改。
type Request struct {
	// URL 是去掉查询串后的完整端点地址。
	URL *url.URL
	// Host 截断到最后一个 hapi 路径段（含），用于拼接 /data、/info 子请求。
	Host     *url.URL
	Endpoint Endpoint

	Dataset    string
	Start      string
	Stop       string
	Parameters string
	Format     string
	Include    string

	// 记录调用方使用的拼写，子请求沿用同一版本的键名。
	datasetKey string
	pairs      []queryPair
}

// ParseRequest 解析 HAPI 端点 URL。未知查询键立即返回 ErrUnsupportedKey，不做任何 I/O。
func ParseRequest(raw string) (*Request, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https: %q", ErrMalformedRequest, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host: %q", ErrMalformedRequest, raw)
	}

	p := u.Path
	idx := strings.LastIndex(p, "hapi")
	if idx < 0 {
		return nil, fmt.Errorf("%w: no hapi path segment: %q", ErrMalformedRequest, raw)
	}
	endpoint := Endpoint(path.Base(strings.TrimSuffix(p, "/")))
	switch endpoint {
	case EndpointData, EndpointInfo, EndpointCatalog, EndpointCapabilities, EndpointAbout:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEndpoint, endpoint)
	}

	req := &Request{
		URL:      &url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: p},
		Host:     &url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: p[:idx+len("hapi")]},
		Endpoint: endpoint,
	}

	for _, token := range strings.Split(u.RawQuery, "&") {
		if token == "" {
			continue
		}
		pair := queryPair{key: token}
		if i := strings.Index(token, "="); i >= 0 {
			pair = queryPair{key: token[:i], value: token[i+1:], hasValue: true}
		}
		value, err := url.QueryUnescape(pair.value)
		if err != nil {
			return nil, fmt.Errorf("%w: bad escape in %q", ErrMalformedRequest, token)
		}
		switch pair.key {
		case "start", "time.min":
			req.Start = value
		case "stop", "time.max":
			req.Stop = value
		case "dataset", "id":
			req.Dataset = value
			req.datasetKey = pair.key
		case "parameters":
			req.Parameters = value
		case "format":
			req.Format = value
		case "include":
			req.Include = value
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, token)
		}
		req.pairs = append(req.pairs, pair)
	}

	if endpoint == EndpointData || endpoint == EndpointInfo {
		if req.Dataset == "" {
			return nil, fmt.Errorf("%w: dataset is required for %s", ErrMalformedRequest, endpoint)
		}
	}
	if endpoint == EndpointData && (req.Start == "" || req.Stop == "") {
		return nil, fmt.Errorf("%w: start and stop are required for data", ErrMalformedRequest)
	}
	return req, nil
}

// DataFormat 返回数据端点的格式，缺省为 csv；json 与其它值均不支持。
func (r *Request) DataFormat() (Format, error) {
	switch Format(r.Format) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatBinary:
		return FormatBinary, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, r.Format)
	}
}

// IncludeHeader 报告是否要求在数据前附加头部。
func (r *Request) IncludeHeader() bool {
	return r.Include == "header"
}

// ParameterNames 返回请求的参数列表；nil 表示全部参数。
func (r *Request) ParameterNames() []string {
	if r.Parameters == "" {
		return nil
	}
	return strings.Split(r.Parameters, ",")
}

// String 输出原始请求（保留原查询串顺序）。
func (r *Request) String() string {
	return r.rebuild(r.URL, nil)
}

// WithoutKeys 返回删除了给定键的请求地址。子请求用它去掉 include/parameters。
func (r *Request) WithoutKeys(keys ...string) string {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	return r.rebuild(r.URL, func(p queryPair) (queryPair, bool) {
		_, skip := drop[p.key]
		return p, !skip
	})
}

// DayURL 合成单日子请求：在原查询上就地替换 start/stop（沿用 time.min/time.max 的拼写），
// 并去掉 include，使缓存文件只包含记录。
func (r *Request) DayURL(start, stop string) string {
	dataURL := r.Host.JoinPath(string(EndpointData))
	return r.rebuild(dataURL, func(p queryPair) (queryPair, bool) {
		switch p.key {
		case "start", "time.min":
			return queryPair{key: p.key, value: start, hasValue: true}, true
		case "stop", "time.max":
			return queryPair{key: p.key, value: stop, hasValue: true}, true
		case "include":
			return p, false
		}
		return p, true
	})
}

// InfoURL 返回该数据集完整 info 描述的地址，不带 parameters。
func (r *Request) InfoURL() string {
	key := r.datasetKey
	if key == "" {
		key = "dataset"
	}
	u := r.Host.JoinPath(string(EndpointInfo))
	u.RawQuery = key + "=" + url.QueryEscape(r.Dataset)
	return u.String()
}

func (r *Request) rebuild(base *url.URL, fn func(queryPair) (queryPair, bool)) string {
	parts := make([]string, 0, len(r.pairs))
	for _, p := range r.pairs {
		if fn != nil {
			var keep bool
			if p, keep = fn(p); !keep {
				continue
			}
		}
		if p.hasValue {
			parts = append(parts, p.key+"="+p.value)
		} else {
			parts = append(parts, p.key)
		}
	}
	u := *base
	u.RawQuery = strings.Join(parts, "&")
	return u.String()
}
