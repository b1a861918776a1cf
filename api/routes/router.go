package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cornman/cornman-backend/api/controllers"
	cartcontrollers "github.com/cornman/cornman-backend/api/controllers/cart"
	webhookcontrollers "github.com/cornman/cornman-backend/api/controllers/webhooks"
	"github.com/cornman/cornman-backend/api/middleware"
	manychatwebhook "github.com/cornman/cornman-backend/internal/webhooks/manychat"
	"github.com/cornman/cornman-backend/pkg/config"
	"github.com/cornman/cornman-backend/pkg/db"
	"github.com/cornman/cornman-backend/pkg/logger"
	"github.com/cornman/cornman-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	cartSessions cartcontrollers.Sessions,
	relayService webhookcontrollers.ManyChatRelay,
	manyChatWebhookService webhookcontrollers.ManyChatWebhookService,
	manyChatWebhookGuard *manychatwebhook.IdempotencyGuard,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["db"] = dbP
	}
	idempotency := middleware.Idempotency(nil, logg)
	rateLimit := middleware.RateLimit(middleware.RateLimitPolicy{}, nil, logg)
	if redisClient != nil {
		deps["redis"] = redisClient
		idempotency = middleware.Idempotency(redisClient, logg)
		rateLimit = middleware.RateLimit(
			middleware.NewRateLimitPolicy("manychat-webhook", cfg.ManyChat.WebhookRateWindow, cfg.ManyChat.WebhookRateLimit),
			redisClient,
			logg,
		)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps, logg))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CartSession(logg))
		r.Use(idempotency)

		r.Get("/ping", controllers.CartPing())

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(cartSessions, logg))
			r.Delete("/", cartcontrollers.CartClear(cartSessions, logg))
			r.Post("/items", cartcontrollers.CartAddItem(cartSessions, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartUpdateQuantity(cartSessions, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(cartSessions, logg))
			r.Post("/open", cartcontrollers.CartOpen(cartSessions, logg))
			r.Post("/close", cartcontrollers.CartClose(cartSessions, logg))
			r.Post("/toggle", cartcontrollers.CartToggle(cartSessions, logg))
		})
	})

	signature := webhookcontrollers.SignaturePolicy{
		Secret:        cfg.ManyChat.WebhookSecret,
		AllowUnsigned: cfg.ManyChat.AllowUnsigned,
	}
	receive := webhookcontrollers.ManyChatReceive(manyChatWebhookService, signature, nil, logg)
	if manyChatWebhookGuard != nil {
		receive = webhookcontrollers.ManyChatReceive(manyChatWebhookService, signature, manyChatWebhookGuard, logg)
	}

	r.Route("/api/webhooks/manychat", func(r chi.Router) {
		r.With(rateLimit).Post("/receive", receive)
		r.With(idempotency).Post("/send", webhookcontrollers.ManyChatSend(relayService, logg))
	})

	return r
}
