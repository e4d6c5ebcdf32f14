package server

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/hapi-cache/hapi-cache/internal/config"
)

// ServerRoute 将上游配置与解析后的 URL 聚合在一起，供路由/代理层直接复用。
type ServerRoute struct {
	Config config.ServerConfig
	// UpstreamURL 是远端 HAPI 根地址，路径以 /hapi 结尾。
	UpstreamURL *url.URL
}

// Target 拼出远端端点地址：<upstream>/<endpoint>?<rawQuery>。
func (r *ServerRoute) Target(endpoint, rawQuery string) string {
	u := r.UpstreamURL.JoinPath(endpoint)
	u.RawQuery = rawQuery
	return u.String()
}

// ServerRegistry 提供名称到 ServerRoute 的查询能力。
type ServerRegistry struct {
	routes  map[string]*ServerRoute
	ordered []*ServerRoute
}

// NewServerRegistry 根据配置构建名称映射。调用方应在启动阶段创建一次并复用。
func NewServerRegistry(cfg *config.Config) (*ServerRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &ServerRegistry{
		routes: make(map[string]*ServerRoute, len(cfg.Servers)),
	}
	for _, s := range cfg.Servers {
		if _, exists := registry.routes[s.Name]; exists {
			return nil, fmt.Errorf("duplicate server name %s", s.Name)
		}
		upstreamURL, err := url.Parse(s.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream for server %s: %w", s.Name, err)
		}
		route := &ServerRoute{Config: s, UpstreamURL: upstreamURL}
		registry.routes[s.Name] = route
		registry.ordered = append(registry.ordered, route)
	}
	return registry, nil
}

// Lookup 根据路径前缀中的名称查找 ServerRoute。
func (r *ServerRegistry) Lookup(name string) (*ServerRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 返回当前注册的 ServerRoute 列表（按配置定义的顺序）。
func (r *ServerRegistry) List() []ServerRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	result := make([]ServerRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}
