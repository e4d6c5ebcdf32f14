package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hapi-cache/hapi-cache/internal/cache"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", err.Error())
	}
	if g.CacheDir == "" {
		return newFieldError("Global.CacheDir", "不能为空")
	}
	if _, _, err := ParseStaleAfter(g.StaleAfter); err != nil {
		return newFieldError("Global.StaleAfter", err.Error())
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Servers {
		server := &c.Servers[i]
		if server.Name == "" {
			return newFieldError("Server[].Name", "不能为空")
		}
		if strings.ContainsAny(server.Name, "/ ") {
			return newFieldError(serverField(server.Name, "Name"), "不允许包含 / 或空格")
		}
		if _, exists := seenNames[server.Name]; exists {
			return newFieldError(serverField(server.Name, "Name"), "重复")
		}
		seenNames[server.Name] = struct{}{}

		if err := validateUpstream(server.Upstream); err != nil {
			return fmt.Errorf("%s: %w", serverField(server.Name, "Upstream"), err)
		}
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	if path.Base(parsed.Path) != "hapi" {
		return fmt.Errorf("上游路径必须以 /hapi 结尾: %s", raw)
	}
	if parsed.RawQuery != "" {
		return fmt.Errorf("上游地址不能带查询串: %s", raw)
	}
	return nil
}

// Directive 把全局缓存配置转换为编排器使用的 cache.Directive。
func (c *Config) Directive() (cache.Directive, error) {
	after, before, err := ParseStaleAfter(c.Global.StaleAfter)
	if err != nil {
		return cache.Directive{}, newFieldError("Global.StaleAfter", err.Error())
	}
	return cache.Directive{
		RootDir:         c.Global.CacheDir,
		StaleAfter:      after,
		StaleBefore:     before,
		UseStaleIfError: c.Global.UseStaleIfError,
	}, nil
}
