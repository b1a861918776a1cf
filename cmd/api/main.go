package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cornman/cornman-backend/api/routes"
	"github.com/cornman/cornman-backend/internal/cart"
	"github.com/cornman/cornman-backend/internal/relay"
	"github.com/cornman/cornman-backend/internal/subscribers"
	manychatwebhook "github.com/cornman/cornman-backend/internal/webhooks/manychat"
	"github.com/cornman/cornman-backend/pkg/config"
	"github.com/cornman/cornman-backend/pkg/db"
	"github.com/cornman/cornman-backend/pkg/instance"
	"github.com/cornman/cornman-backend/pkg/logger"
	"github.com/cornman/cornman-backend/pkg/manychat"
	"github.com/cornman/cornman-backend/pkg/metrics"
	"github.com/cornman/cornman-backend/pkg/migrate"
	"github.com/cornman/cornman-backend/pkg/redis"
)

const (
	shutdownTimeout   = 15 * time.Second
	webhookGuardScope = "manychat-webhook"
	readHeaderTimeout = 10 * time.Second
	flowCheckTimeout  = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(context.Background(), "redis not configured; idempotency and rate limiting disabled")
	}

	cartStorage, err := newCartStorage(cfg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart storage", err)
		os.Exit(1)
	}

	cartSessions, err := cart.NewRegistry(cart.RegistryParams{
		Storage:        cartStorage,
		KeyPrefix:      cfg.Cart.StorageKey,
		IdleTTL:        cfg.Cart.SessionIdleTTL,
		PersistTimeout: cfg.Cart.PersistTimeout,
		Logger:         logg,
		Metrics:        metrics.NewCartMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart registry", err)
		os.Exit(1)
	}

	relayMetrics := metrics.NewRelayMetrics(prometheus.DefaultRegisterer)
	subscriberRepo := subscribers.NewRepository(dbClient.DB())
	flows := manychat.FlowIDsFromConfig(cfg.ManyChat)

	relayParams := relay.ServiceParams{
		Flows: flows,
		Storefront: relay.Storefront{
			BaseURL:           cfg.Storefront.BaseURL,
			SupportContact:    cfg.Storefront.SupportContact,
			DiscountValidDays: cfg.Storefront.DiscountValidDays,
		},
		Logger:  logg,
		Metrics: relayMetrics,
	}
	webhookParams := manychatwebhook.ServiceParams{
		Repo:    subscriberRepo,
		Flows:   flows,
		Logger:  logg,
		Metrics: relayMetrics,
	}
	if strings.TrimSpace(cfg.ManyChat.APIKey) != "" {
		manyChatClient, err := manychat.NewClient(cfg.ManyChat.APIKey,
			manychat.WithBaseURL(cfg.ManyChat.BaseURL),
			manychat.WithTimeout(cfg.ManyChat.Timeout),
		)
		if err != nil {
			logg.Error(context.Background(), "failed to create manychat client", err)
			os.Exit(1)
		}
		warnUnresolvedFlows(logg, flows, manyChatClient)
		relayParams.Client = manyChatClient
		relayParams.Subscribers = subscribers.NewResolver(subscriberRepo, manyChatClient)
		webhookParams.Acker = manyChatClient
		webhookParams.Fields = manyChatClient
	} else {
		logg.Warn(context.Background(), "manychat api key not configured; outbound flows disabled")
		relayParams.Subscribers = subscribers.NewResolver(subscriberRepo, nil)
	}

	relayService, err := relay.NewService(relayParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create relay service", err)
		os.Exit(1)
	}

	webhookService, err := manychatwebhook.NewService(webhookParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create manychat webhook service", err)
		os.Exit(1)
	}

	var webhookGuard *manychatwebhook.IdempotencyGuard
	if redisClient != nil {
		webhookGuard, err = manychatwebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookTTL, webhookGuardScope)
		if err != nil {
			logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
			os.Exit(1)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"instance":     instance.GetID(),
		"cart_storage": cartStorage.Backend(),
	})

	go func() {
		if err := cartSessions.Run(ctx, cfg.Cart.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "cart session sweeper stopped", err)
		}
	}()

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			cartSessions,
			relayService,
			webhookService,
			webhookGuard,
			promhttp.Handler(),
		),
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
	}
	if err := cartSessions.Flush(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "failed to flush cart sessions", err)
	}
	logg.Info(shutdownCtx, "api server stopped")
}

func newCartStorage(cfg *config.Config, dbClient *db.Client, redisClient *redis.Client) (cart.Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Cart.StorageBackend)) {
	case config.CartStorageDB:
		return cart.NewDBStorage(dbClient)
	case config.CartStorageMemory:
		return cart.NewMemoryStorage(), nil
	default:
		if redisClient == nil {
			return nil, errors.New("redis cart storage requires a redis connection")
		}
		return cart.NewRedisStorage(redisClient, cfg.Cart.SnapshotTTL)
	}
}

// warnUnresolvedFlows logs configured flow ids ManyChat does not know. Startup continues;
// sends to those flows fail and are reported per event.
func warnUnresolvedFlows(logg *logger.Logger, flows manychat.FlowIDs, client *manychat.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), flowCheckTimeout)
	defer cancel()
	for name, err := range flows.Verify(ctx, client) {
		logg.Error(logg.WithFields(ctx, map[string]any{
			"flow":    name,
			"flow_id": flows.Lookup(name),
		}), "manychat.flow_unresolved", err)
	}
}
