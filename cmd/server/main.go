package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chat-history/internal/ai"
	"github.com/suPer8Hu/chat-history/internal/chat"
	"github.com/suPer8Hu/chat-history/internal/config"
	"github.com/suPer8Hu/chat-history/internal/db"
	"github.com/suPer8Hu/chat-history/internal/httpapi"
	"github.com/suPer8Hu/chat-history/internal/httpapi/handlers"
	"github.com/suPer8Hu/chat-history/internal/logging"
	"github.com/suPer8Hu/chat-history/internal/store/rabbitmq"
	"github.com/suPer8Hu/chat-history/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		return err
	}
	if err := db.Migrate(gdb); err != nil {
		return err
	}

	var svcOpts []chat.Option
	svcOpts = append(svcOpts, chat.WithLogger(log.Named("chat")))

	if cfg.RedisAddr != "" {
		cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL, log.Named("redis"))
		defer cache.Close()
		if err := cache.Ping(ctx); err != nil {
			// misses fall through to the database
			log.Warn("redis unreachable, continuing", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		svcOpts = append(svcOpts, chat.WithCache(cache))
	}

	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
		} else {
			defer pub.Close()
			svcOpts = append(svcOpts, chat.WithEvents(pub))
		}
	}

	adapter, warm, err := buildAdapter(ctx, cfg, log)
	if err != nil {
		return err
	}
	if warm != nil {
		defer warm.Stop()
	}

	svc := chat.NewService(chat.NewRepo(gdb), adapter, cfg.Greeting, svcOpts...)

	gin.SetMode(cfg.GinMode)
	h := handlers.NewHandler(svc, log.Named("http"), adapter.Ready)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AITimeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildAdapter(ctx context.Context, cfg config.Config, log *zap.Logger) (*ai.Adapter, *ai.WarmupTask, error) {
	provider, err := ai.DefaultRegistry(cfg).Get(ctx, cfg.AIProvider, cfg.AIModel)
	if err != nil {
		return nil, nil, err
	}

	opts := []ai.AdapterOption{
		ai.WithPersona(cfg.AIPersona),
		ai.WithWindow(ai.Window{Threshold: cfg.ContextThreshold, Head: cfg.ContextHead, Tail: cfg.ContextTail}),
		ai.WithTimeout(cfg.AITimeout),
		ai.WithFallback(cfg.AIFallback),
		ai.WithAdapterLogger(log.Named("ai")),
	}
	if cfg.AISuggestions == "markdown" {
		opts = append(opts, ai.WithSuggestions(ai.NewMarkdownSuggestions(3)))
	}

	var task *ai.WarmupTask
	if w, ok := provider.(ai.Warmer); ok && cfg.AIWarmup {
		task = ai.NewWarmupTask(w, 0, log.Named("warmup"))
		if err := task.Start(ctx, cfg.AIKeepWarm); err != nil {
			return nil, nil, fmt.Errorf("AI_KEEP_WARM: %w", err)
		}
		opts = append(opts, ai.WithWarmup(task, cfg.AILoading))
	}

	return ai.NewAdapter(cfg.AIProvider, provider, opts...), task, nil
}
