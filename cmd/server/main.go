// Command server runs the chat service: the WebSocket endpoint for
// direct messages plus the operational HTTP surface around it.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/linkhub/chat-service/internal/chat"
	"github.com/linkhub/chat-service/internal/config"
	"github.com/linkhub/chat-service/internal/notification"
	"github.com/linkhub/chat-service/internal/repository"
	"github.com/linkhub/chat-service/internal/server"
	"github.com/linkhub/chat-service/pkg/logger"
	"github.com/linkhub/chat-service/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	log := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.DSN(), log)
	if err != nil {
		log.Fatal("postgres unavailable", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := dialRedis(ctx, cfg, log)
	if err != nil {
		log.Fatal("redis unavailable", zap.Error(err))
	}
	defer redisClient.Close()

	var publisher notification.Publisher
	if cfg.AMQPURL != "" {
		amqpPub, err := dialAMQP(ctx, cfg, log)
		if err != nil {
			log.Fatal("amqp unavailable", zap.Error(err))
		}
		defer amqpPub.Close()
		publisher = amqpPub
	} else {
		log.Warn("AMQP_URL not set, notifications are logged and dropped")
		publisher = logPublisher{log: log}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := chat.NewMetrics(registry)

	messages := repository.NewMessageRepository(db, log)
	graph := repository.NewGraphRepository(db, log)
	inbox := repository.NewInboxRepository(db, log)
	rooms := chat.NewRoomRegistry(log)
	cache := chat.NewConversationCache(
		chat.NewRedisKV(redisClient), messages, redis.NewKeyBuilder("chat"), log, metrics)
	dispatcher := notification.NewDispatcher(publisher, 256, log)

	srv := server.New(":"+cfg.AppPort, cfg.AllowedOrigins, server.Deps{
		Sessions: chat.SessionDeps{
			Rooms:   rooms,
			Cache:   cache,
			Store:   messages,
			Gate:    chat.NewGate(graph, log, metrics),
			Typing:  chat.NewTypingRelay(rooms),
			Notify:  dispatcher,
			Metrics: metrics,
		},
		Cache:     cache,
		Store:     messages,
		Inbox:     inbox,
		Metrics:   metrics,
		JWTSecret: cfg.JWTSecret,
		DB:        db,
		Redis:     redisClient,
		Registry:  registry,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Fatal("service exited", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func dialRedis(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	var client *redis.Client
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 8), ctx)
	err := backoff.Retry(func() error {
		var err error
		client, err = redis.NewClient(redis.Config{
			Host:         cfg.RedisHost,
			Port:         cfg.RedisPort,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			MaxRetries:   cfg.RedisMaxRetries,
		}, log)
		if err != nil {
			log.Warn("redis not ready, retrying", zap.Error(err))
		}
		return err
	}, policy)
	return client, err
}

func dialAMQP(ctx context.Context, cfg *config.Config, log *zap.Logger) (*notification.AMQPPublisher, error) {
	var pub *notification.AMQPPublisher
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 8), ctx)
	err := backoff.Retry(func() error {
		var err error
		pub, err = notification.NewAMQPPublisher(cfg.AMQPURL, cfg.NotificationQueue, log)
		if err != nil {
			log.Warn("amqp not ready, retrying", zap.Error(err))
		}
		return err
	}, policy)
	return pub, err
}

// logPublisher is the development fallback when no broker is configured.
type logPublisher struct {
	log *zap.Logger
}

func (p logPublisher) Publish(_ context.Context, event notification.Event) error {
	p.log.Info("notification (no broker configured)",
		zap.Int64("sender_id", event.SenderID),
		zap.Int64("recipient_id", event.RecipientID),
		zap.Time("sent_at", event.SentAt.Truncate(time.Second)))
	return nil
}
