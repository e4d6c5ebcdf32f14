package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/hapi-cache/hapi-cache/internal/config"
	"github.com/hapi-cache/hapi-cache/internal/hapicache"
	"github.com/hapi-cache/hapi-cache/internal/logging"
	"github.com/hapi-cache/hapi-cache/internal/proxy"
	"github.com/hapi-cache/hapi-cache/internal/server"
	"github.com/hapi-cache/hapi-cache/internal/server/routes"
	"github.com/hapi-cache/hapi-cache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	configSet   bool
	targetURL   string
	serve       bool
	checkOnly   bool
	showVersion bool

	// 以下为对配置文件的覆盖，nil 表示未指定。
	cacheDir        *string
	staleAfter      *string
	useStaleIfError *bool
	upstreamTimeout *config.Duration
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}
	if opts.targetURL == "" && !opts.serve && !opts.checkOnly {
		fmt.Fprintln(stdErr, "需要 -url、-serve 或 -check-config 之一")
		return 2
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	// 一次性模式下 stdout 只承载数据流，日志改写到 stderr。
	console := stdOut
	if opts.targetURL != "" {
		console = stdErr
	}
	logger, err := logging.InitLogger(cfg.Global, console)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	directive, err := cfg.Directive()
	if err != nil {
		fmt.Fprintf(stdErr, "缓存策略无效: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["servers"] = len(cfg.Servers)
		fields["cache_dir"] = directive.RootDir
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	hc, err := hapicache.New(hapicache.Options{
		Directive: directive,
		Client:    server.NewUpstreamClient(cfg),
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	if opts.targetURL != "" {
		if err := fetchOnce(context.Background(), hc, opts.targetURL); err != nil {
			fmt.Fprintf(stdErr, "请求失败: %v\n", err)
			return 1
		}
		return 0
	}

	registry, err := server.NewServerRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Server 注册表失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["servers"] = len(cfg.Servers)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_dir"] = directive.RootDir
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, registry, proxy.NewHandler(hc, logger), logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig 读取配置文件并叠加 CLI 覆盖项。一次性模式且未显式指定配置时，
// 不存在的配置文件退回到纯默认值。
func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		if opts.configSet || opts.serve || opts.checkOnly {
			return nil, err
		}
		if _, statErr := os.Stat(opts.configPath); !errors.Is(statErr, os.ErrNotExist) {
			return nil, err
		}
		if cfg, err = config.Default(); err != nil {
			return nil, err
		}
	}

	if opts.cacheDir != nil {
		abs, err := filepath.Abs(*opts.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Global.CacheDir = abs
	}
	if opts.staleAfter != nil {
		cfg.Global.StaleAfter = *opts.staleAfter
	}
	if opts.useStaleIfError != nil {
		cfg.Global.UseStaleIfError = *opts.useStaleIfError
	}
	if opts.upstreamTimeout != nil {
		cfg.Global.UpstreamTimeout = *opts.upstreamTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fetchOnce 把单个 HAPI URL 的响应流复制到 stdout。
func fetchOnce(ctx context.Context, opener proxy.Opener, target string) error {
	s, err := opener.Open(ctx, target)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(stdOut, s)
	if err := s.Close(); copyErr == nil {
		copyErr = err
	}
	return copyErr
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("hapi-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		opts       cliOptions
		configFlag string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 HAPI_CACHE_CONFIG 覆盖）")
	fs.StringVar(&opts.targetURL, "url", "", "一次性请求的 HAPI URL，响应写到 stdout")
	fs.BoolVar(&opts.serve, "serve", false, "启动 HTTP 代理前端")
	fs.BoolVar(&opts.checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&opts.showVersion, "version", false, "显示版本信息")
	fs.Func("cache-dir", "缓存根目录，覆盖配置中的 CacheDir", func(v string) error {
		opts.cacheDir = &v
		return nil
	})
	fs.Func("stale-after", "过期阈值：7d、P1DT2H、24h 或 2024-01-01[T00:00:00]", func(v string) error {
		if _, _, err := config.ParseStaleAfter(v); err != nil {
			return err
		}
		opts.staleAfter = &v
		return nil
	})
	fs.BoolFunc("use-stale-if-error", "远端失败时使用过期缓存", func(v string) error {
		b := v == "true"
		if !b && v != "false" {
			return fmt.Errorf("非法布尔值 %q", v)
		}
		opts.useStaleIfError = &b
		return nil
	})
	fs.Func("upstream-timeout", "远端请求超时，例如 30s 或 120", func(v string) error {
		var d config.Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return err
		}
		opts.upstreamTimeout = &d
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if fs.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("未知参数: %v", fs.Args())
	}

	path := os.Getenv("HAPI_CACHE_CONFIG")
	if path != "" {
		opts.configSet = true
	}
	if configFlag != "" {
		path = configFlag
		opts.configSet = true
	}
	if path == "" {
		path = "config.toml"
	}
	opts.configPath = path

	return opts, nil
}

func startHTTPServer(cfg *config.Config, registry *server.ServerRegistry, proxyHandler server.ProxyHandler, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:   logger,
		Registry: registry,
		Proxy:    proxyHandler,
	})
	if err != nil {
		return err
	}
	routes.RegisterServerRoutes(app, registry, cfg.Global.CacheDir)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
