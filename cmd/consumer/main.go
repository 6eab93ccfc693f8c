package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/samber/do"
	"github.com/serroba/ratelimiter/internal/container"
	"github.com/serroba/ratelimiter/internal/messaging"
	"go.uber.org/zap"
)

func main() {
	opts, err := container.LoadConsumerOptions()
	if err != nil {
		// No logger exists before the options are known.
		log.Fatalf("load config: %v", err)
	}

	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.EventsPackage(injector)
	container.ConsumerGroupPackage(injector)

	logger := do.MustInvoke[*zap.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := do.MustInvoke[*messaging.ConsumerGroup](injector).Start(ctx); err != nil {
		logger.Fatal("failed to start consumer group", zap.Error(err))
	}

	logger.Info("consuming lease events",
		zap.String("redis", opts.RedisAddr),
		zap.String("group", opts.ConsumerGroup),
		zap.String("sink", opts.AnalyticsSink),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := injector.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	_ = logger.Sync()
}
