package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/suPer8Hu/chat-history/internal/chat"
	"github.com/suPer8Hu/chat-history/internal/config"
	"github.com/suPer8Hu/chat-history/internal/db"
	"github.com/suPer8Hu/chat-history/internal/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	convs, err := chat.SeedDemo(ctx, chat.NewRepo(gdb), time.Now())
	if err != nil {
		log.Fatal("seed", zap.Error(err))
	}
	for _, c := range convs {
		log.Info("seeded conversation", zap.String("id", c.ID), zap.String("title", c.Title), zap.Int("messages", len(c.Messages)))
	}
}
