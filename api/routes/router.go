package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthplusinnovation/storefront/api/controllers"
	"github.com/healthplusinnovation/storefront/api/middleware"
	"github.com/healthplusinnovation/storefront/internal/basket"
	"github.com/healthplusinnovation/storefront/internal/catalog"
	checkoutsvc "github.com/healthplusinnovation/storefront/internal/checkout"
	"github.com/healthplusinnovation/storefront/internal/content"
	"github.com/healthplusinnovation/storefront/pkg/config"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	products *catalog.Catalog,
	pages *content.Library,
	basketService basket.Service,
	checkoutService checkoutsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	// A nil client must not leak into the middleware as a typed nil.
	var (
		redisPinger  redis.Pinger
		idempotency  redis.IdempotencyStore
		checkoutRate *redis.Client
	)
	if redisClient != nil {
		redisPinger = redisClient
		idempotency = redisClient
		checkoutRate = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, basketService, redisPinger))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.Checkout.RateLimitWindow, cfg.Checkout.RateLimit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ProductsList(products, logg))
		r.Get("/products/{productId}", controllers.ProductGet(products, logg))
		r.Get("/categories", controllers.CategoriesList(products, logg))
		r.Get("/pages", controllers.PagesList(pages, logg))
		r.Get("/pages/{slug}", controllers.PageGet(pages, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.BasketSession(cfg.Session, cfg.App.IsProd(), logg))

			r.Route("/basket", func(r chi.Router) {
				r.Get("/", controllers.BasketGet(basketService, logg))
				r.Delete("/", controllers.BasketClear(basketService, logg))
				r.Post("/items", controllers.BasketAddItem(basketService, products, logg))
				r.Patch("/items/{productId}", controllers.BasketUpdateItem(basketService, logg))
				r.Delete("/items/{productId}", controllers.BasketRemoveItem(basketService, logg))
			})

			r.Group(func(r chi.Router) {
				if checkoutRate != nil {
					r.Use(middleware.RateLimit(checkoutPolicy, checkoutRate, logg))
				}
				r.Use(middleware.Idempotency(idempotency, cfg.Checkout.IdempotencyTTL, logg))
				r.Post("/checkout", controllers.Checkout(checkoutService, logg))
			})
		})
	})

	return r
}
