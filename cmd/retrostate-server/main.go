package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/yndnr/retrostate-go/internal/core/service"
	"github.com/yndnr/retrostate-go/internal/infra/buildinfo"
	"github.com/yndnr/retrostate-go/internal/infra/confloader"
	"github.com/yndnr/retrostate-go/internal/infra/shutdown"
	"github.com/yndnr/retrostate-go/internal/server/config"
	"github.com/yndnr/retrostate-go/internal/server/httpserver"
	"github.com/yndnr/retrostate-go/internal/server/localserver"
	"github.com/yndnr/retrostate-go/internal/server/redisserver"
	"github.com/yndnr/retrostate-go/internal/storage"
	"github.com/yndnr/retrostate-go/internal/storage/memory"
	"github.com/yndnr/retrostate-go/internal/telemetry/logger"
	"github.com/yndnr/retrostate-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		overrides   = map[string]any{}
	)
	flag.Func("set", "Override a config key, as key=value (repeatable)", func(s string) error {
		key, value, err := confloader.ParseOverride(s)
		if err != nil {
			return err
		}
		overrides[key] = value
		return nil
	})
	flag.Parse()

	if *showVersion {
		fmt.Printf("retrostate-server %s\n", buildinfo.String())
		return nil
	}

	loadConfig := configLoader(overrides)
	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting retrostate-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", *configFile,
		"settings", config.Sanitize(cfg))

	metrics := metric.NewRegistry()
	shutdownHandler := shutdown.NewHandler(30*time.Second, slogLogger)

	repo, err := initStorage(cfg, metrics, slogLogger, shutdownHandler)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err := metrics.Registerer().Register(metric.NewStoreCollector(repo)); err != nil {
		return fmt.Errorf("register store metrics: %w", err)
	}

	states := service.NewStateService(repo, service.StateConfig{
		TTL:            cfg.Storage.StateTTL,
		MaxStateBytes:  cfg.Storage.MaxStateBytes,
		MaxRangeLength: cfg.Storage.MaxRangeLength,
	}, service.WithObserver(metrics))

	if cfg.Storage.StateTTL > 0 {
		reaper := service.NewReaper(states, cfg.Storage.ReapInterval, slogLogger.With("component", "reaper"))
		reaper.Start()
		shutdownHandler.OnShutdown("reaper", func(context.Context) error {
			reaper.Stop()
			return nil
		})
	}

	routerCfg := httpserver.DefaultRouterConfig()
	routerCfg.States = states
	routerCfg.Metrics = metrics
	routerCfg.Logger = slogLogger
	routerCfg.MaxBodyBytes = cfg.Server.HTTP.MaxBodyBytes
	routerCfg.RateLimit = cfg.Server.HTTP.RateLimit
	routerCfg.RateBurst = cfg.Server.HTTP.RateBurst

	httpServer, err := httpserver.New(httpserver.Config{
		Addr:        cfg.Server.HTTP.Addr,
		Handler:     httpserver.NewRouter(routerCfg),
		Logger:      slogLogger.With("component", "http"),
		TLSCertFile: cfg.Server.HTTP.TLSCertFile,
		TLSKeyFile:  cfg.Server.HTTP.TLSKeyFile,
	})
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.HTTP.Addr, err)
	}
	shutdownHandler.OnShutdown("http", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	go func() {
		if err := httpServer.Serve(ln); err != nil {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if cfg.Server.RESP.Addr != "" {
		if err := startRESP(cfg, states, httpServer, slogLogger, shutdownHandler); err != nil {
			return fmt.Errorf("init resp server: %w", err)
		}
	}

	if cfg.Server.Local.SocketPath != "" {
		local := localserver.New(cfg.Server.Local.SocketPath,
			localserver.NewHandler(states, shutdownHandler.Trigger),
			slogLogger.With("component", "local"))
		if err := local.Listen(); err != nil {
			return err
		}
		shutdownHandler.OnShutdown("local", local.Shutdown)
		go func() {
			if err := local.Serve(); err != nil {
				log.Error("local socket error", "error", err)
			}
		}()
	}

	if *configFile != "" {
		stop, err := watchConfig(*configFile, loadConfig, slogLogger)
		if err != nil {
			log.Warn("config watch disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config-watcher", func(context.Context) error {
				return stop()
			})
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// configLoader returns a function that loads and verifies the
// configuration from a file, the environment and the -set overrides.
func configLoader(overrides map[string]any) func(string) (*config.ServerConfig, error) {
	return func(path string) (*config.ServerConfig, error) {
		cfg := config.Default()
		err := confloader.Load(cfg, confloader.WithFile(path), confloader.WithOverrides(overrides))
		if err != nil {
			return nil, err
		}
		if err := config.Verify(cfg); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
}

// initLogger initializes the structured logger and makes it the default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// initStorage opens the durable engine when storage is persistent and the
// plain memory store otherwise. Closing is registered with shutdown.
func initStorage(cfg *config.ServerConfig, metrics *metric.Registry, log *slog.Logger, sh *shutdown.Handler) (service.StateRepository, error) {
	if !cfg.Storage.Persistent {
		log.Info("storage is memory only; states are lost on restart")
		return memory.New(), nil
	}

	storageCfg := storage.DefaultConfig(cfg.Storage.DataDir)
	storageCfg.Logger = log.With("component", "storage")
	storageCfg.Badger.CompactInterval = cfg.Storage.GCInterval
	if cfg.Security.EncryptionKey != "" {
		storageCfg.EncryptionKey = []byte(cfg.Security.EncryptionKey)
	}

	engine, err := storage.New(storageCfg)
	if err != nil {
		return nil, err
	}
	if err := engine.Recover(context.Background()); err != nil {
		engine.Close()
		return nil, fmt.Errorf("storage recovery: %w", err)
	}
	if b, ok := engine.KV().(*storage.Badger); ok {
		if err := metrics.Registerer().Register(b.Collector()); err != nil {
			engine.Close()
			return nil, fmt.Errorf("register badger metrics: %w", err)
		}
	}

	sh.OnShutdown("storage", func(context.Context) error {
		log.Info("shutting down storage engine")
		return engine.Close()
	})
	return engine, nil
}

// startRESP starts the RESP front end. It shares the HTTP rate limits and,
// when server.resp.tls is set, the HTTP certificate.
func startRESP(cfg *config.ServerConfig, states *service.StateService, httpServer *httpserver.Server, log *slog.Logger, sh *shutdown.Handler) error {
	respCfg := redisserver.DefaultConfig()
	respCfg.Addr = cfg.Server.RESP.Addr
	respCfg.MaxBulkLen = cfg.Server.RESP.MaxBulkBytes
	if cfg.Server.HTTP.RateLimit > 0 {
		respCfg.Limiter = httpserver.NewRateLimiter(cfg.Server.HTTP.RateLimit, cfg.Server.HTTP.RateBurst)
	}
	if cfg.Server.RESP.TLS {
		respCfg.TLSConfig = httpServer.TLSConfig()
	}

	ln, err := net.Listen("tcp", respCfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", respCfg.Addr, err)
	}

	srv := redisserver.New(respCfg, states, log.With("component", "resp"))
	sh.OnShutdown("resp", srv.Shutdown)
	go func() {
		if err := srv.Serve(ln); err != nil {
			log.Error("RESP server error", "error", err)
			sh.Trigger()
		}
	}()
	return nil
}

// watchConfig reloads log.level whenever the config file changes. Other
// settings need a restart.
func watchConfig(path string, load func(string) (*config.ServerConfig, error), log *slog.Logger) (func() error, error) {
	r := confloader.NewReloader(path, load, func(cfg *config.ServerConfig) {
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	}, confloader.WithReloadLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-r.Ready():
	case err := <-done:
		cancel()
		return nil, err
	}
	return func() error {
		cancel()
		return <-done
	}, nil
}
