package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/chat-history/internal/chat"
	"github.com/suPer8Hu/chat-history/internal/config"
	"github.com/suPer8Hu/chat-history/internal/db"
	"github.com/suPer8Hu/chat-history/internal/logging"
	"github.com/suPer8Hu/chat-history/internal/store/rabbitmq"
	"github.com/suPer8Hu/chat-history/internal/store/redisstore"
	"go.uber.org/zap"
)

// worker consumes conversation events and keeps the redis conversation cache warm,
// so the first GET after a write does not hit the database.
func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.RabbitURL == "" || cfg.RedisAddr == "" {
		log.Fatal("worker needs RABBIT_URL and REDIS_ADDR")
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}

	cache := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL, log.Named("redis"))
	defer cache.Close()

	// refresh only reads history; no responder needed
	svc := chat.NewService(chat.NewRepo(gdb), nil, "", chat.WithCache(cache), chat.WithLogger(log.Named("chat")))

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, log.Named("rabbitmq"))
	if err != nil {
		log.Fatal("rabbit consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", cfg.WorkerConcurrency))

	err = consumer.Run(ctx, func(ctx context.Context, body []byte) error {
		ev, err := chat.DecodeEvent(body)
		if err != nil {
			return err
		}
		start := time.Now()
		if err := svc.Refresh(ctx, ev); err != nil {
			return err
		}
		if cost := time.Since(start); cost > 500*time.Millisecond {
			log.Info("slow refresh", zap.String("type", string(ev.Type)), zap.String("conversation_id", ev.ConversationID), zap.Duration("cost", cost))
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", zap.Error(err))
		return
	}
	log.Info("worker shutting down")
}
