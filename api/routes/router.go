package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrelucena/vitrine-backend/api/controllers"
	"github.com/andrelucena/vitrine-backend/api/middleware"
	authsvc "github.com/andrelucena/vitrine-backend/internal/auth"
	cartsvc "github.com/andrelucena/vitrine-backend/internal/cart"
	checkoutsvc "github.com/andrelucena/vitrine-backend/internal/checkout"
	shippingsvc "github.com/andrelucena/vitrine-backend/internal/shipping"
	"github.com/andrelucena/vitrine-backend/pkg/commerce"
	"github.com/andrelucena/vitrine-backend/pkg/config"
	"github.com/andrelucena/vitrine-backend/pkg/logger"
	pkgredis "github.com/andrelucena/vitrine-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *pkgredis.Client,
	commerceClient *commerce.Client,
	metricsRegistry prometheus.Gatherer,
	authService authsvc.Service,
	cartService cartsvc.Service,
	shippingService shippingsvc.Service,
	checkoutService checkoutsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	// A nil *redis.Client stays nil inside the interfaces below.
	var idemStore pkgredis.IdempotencyStore
	var redisPinger pkgredis.Pinger
	if redisClient != nil {
		idemStore = redisClient
		redisPinger = redisClient
	}
	var commercePinger pkgredis.Pinger
	if commerceClient != nil {
		commercePinger = commerceClient
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	rateLimit := func(policy middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler {
		if redisClient == nil {
			return middleware.AuthRateLimit(policy, nil, logg)
		}
		return middleware.AuthRateLimit(policy, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "redis", Pinger: redisPinger},
			controllers.ReadinessCheck{Name: "commerce", Pinger: commercePinger},
		))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(rateLimit(loginPolicy)).
			Post("/login", controllers.AuthLogin(authService, logg))
		r.With(
			rateLimit(registerPolicy),
			middleware.Idempotency(idemStore, logg),
		).Post("/register", controllers.AuthRegister(authService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
			r.Put("/items", controllers.CartAddItem(cartService, logg))
			r.Patch("/items", controllers.CartSetQuantity(cartService, logg))
			r.Delete("/items", controllers.CartRemoveItem(cartService, logg))
		})

		r.Post("/shipping/quote", controllers.ShippingQuote(shippingService, logg))

		// Registered flat so the route pattern matches the idempotency rules.
		r.Post("/checkout", controllers.CheckoutStart(checkoutService, logg))
		r.Route("/checkout/{sessionID}", func(r chi.Router) {
			r.Get("/", controllers.CheckoutGet(checkoutService, logg))
			r.Post("/advance", controllers.CheckoutAdvance(checkoutService, logg))
			r.Post("/back", controllers.CheckoutBack(checkoutService, logg))
			r.Post("/quotes", controllers.CheckoutRefreshQuotes(checkoutService, logg))
			r.Post("/payment", controllers.CheckoutBeginPayment(checkoutService, logg))
			r.Post("/payment/capture", controllers.CheckoutCapture(checkoutService, logg))
		})

		r.With(middleware.Auth(cfg.JWT, logg)).Get("/me", controllers.Me(logg))
	})

	return r
}
