package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/weiqigo/server/internal/config"
	"github.com/weiqigo/server/internal/engine"
	"github.com/weiqigo/server/internal/handler"
	gonet "github.com/weiqigo/server/internal/net"
	"github.com/weiqigo/server/internal/protocol"
	"github.com/weiqigo/server/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName, env string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            weiqigo  v0.1.0                \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       圍棋對弈伺服器 · Go 實作            \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(%s)\033[0m\n\n", serverName, env)
}

func printSection(title string) {
	// Use rune count for CJK width calculation (each CJK char = 2 columns)
	displayWidth := 0
	for _, r := range title {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	lineLen := 46 - displayWidth - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load .env (optional) and config
	godotenv.Load()

	cfgPath := "config/server.toml"
	if p := os.Getenv("WEIQIGO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.Env)

	// 3. Connect the session store
	printSection("狀態儲存")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := newStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()
	fmt.Println()

	// 4. Wire hub, engine, and command handlers
	hub := gonet.NewHub(st, log)
	eng := engine.New(st, hub, log)

	reg := protocol.NewRegistry(log)
	deps := &handler.Deps{
		Engine: eng,
		Hub:    hub,
		Store:  st,
		Log:    log,
	}
	handler.RegisterAll(reg, deps)

	cmdPerSec := 0
	if cfg.RateLimit.Enabled {
		cmdPerSec = cfg.RateLimit.CommandsPerSecond
	}
	srv := gonet.NewServer(
		cfg.BindAddress(),
		hub,
		reg,
		cfg.Network.OutQueueSize,
		cmdPerSec,
		handler.OnSessionClose(deps),
		log,
	)

	// 5. Run server, reaper, and signal watcher
	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", cfg.BindAddress()))
	printReady("WebSocket 端點 /ws")
	fmt.Println()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		err := eng.RunReaper(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("收到關閉信號")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP 關閉逾時", zap.Error(err))
		}
		eng.Shutdown()
		log.Info("伺服器已停止")
		return nil
	})

	return g.Wait()
}

// newStore connects Redis when configured, and falls back to the in-memory
// store for single-instance development runs.
func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.Redis.URL == "" && cfg.Redis.Host == "" {
		printOK("使用記憶體儲存（未設定 Redis）")
		return store.NewMemory(), nil
	}

	var opts *redis.Options
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Redis.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	rs, err := store.NewRedis(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	printOK(fmt.Sprintf("Redis 連線成功 (%s)", opts.Addr))
	return rs, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
