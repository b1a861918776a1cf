package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cornman/cornman-backend/internal/relay"
	"github.com/cornman/cornman-backend/internal/relay/consumer"
	"github.com/cornman/cornman-backend/internal/subscribers"
	"github.com/cornman/cornman-backend/pkg/config"
	"github.com/cornman/cornman-backend/pkg/db"
	"github.com/cornman/cornman-backend/pkg/idempotency"
	"github.com/cornman/cornman-backend/pkg/instance"
	"github.com/cornman/cornman-backend/pkg/logger"
	"github.com/cornman/cornman-backend/pkg/manychat"
	"github.com/cornman/cornman-backend/pkg/metrics"
	"github.com/cornman/cornman-backend/pkg/pubsub"
	"github.com/cornman/cornman-backend/pkg/redis"
)

const serviceName = "notification-worker"

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: serviceName})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	if strings.TrimSpace(cfg.ManyChat.APIKey) == "" {
		requireResource(ctx, logg, "manychat", errors.New("CORNMAN_MANYCHAT_API_KEY is required"))
	}
	manyChatClient, err := manychat.NewClient(cfg.ManyChat.APIKey,
		manychat.WithBaseURL(cfg.ManyChat.BaseURL),
		manychat.WithTimeout(cfg.ManyChat.Timeout),
	)
	requireResource(ctx, logg, "manychat", err)

	flows := manychat.FlowIDsFromConfig(cfg.ManyChat)
	verifyCtx, cancelVerify := context.WithTimeout(ctx, cfg.ManyChat.Timeout+5*time.Second)
	for name, verifyErr := range flows.Verify(verifyCtx, manyChatClient) {
		logg.Error(logg.WithField(verifyCtx, "flow", name), "manychat.flow_unresolved", verifyErr)
	}
	cancelVerify()

	relayService, err := relay.NewService(relay.ServiceParams{
		Client: manyChatClient,
		Flows:  flows,
		Storefront: relay.Storefront{
			BaseURL:           cfg.Storefront.BaseURL,
			SupportContact:    cfg.Storefront.SupportContact,
			DiscountValidDays: cfg.Storefront.DiscountValidDays,
		},
		Subscribers: subscribers.NewResolver(subscribers.NewRepository(dbClient.DB()), manyChatClient),
		Logger:      logg,
		Metrics:     metrics.NewRelayMetrics(prometheus.DefaultRegisterer),
	})
	requireResource(ctx, logg, "relay service", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	orderStatusConsumer, err := consumer.NewConsumer(
		relayService,
		pubsubClient.OrderStatusSubscription(),
		manager,
		logg,
	)
	requireResource(ctx, logg, "order status consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind":  cfg.Service.Kind,
		"env":          cfg.App.Env,
		"instance":     instance.GetID(),
		"subscription": cfg.PubSub.OrderStatusSubscription,
	})
	logg.Info(runCtx, "notification worker ready")

	if err := orderStatusConsumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "notification worker not working", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "notification worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
