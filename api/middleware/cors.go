package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/healthplusinnovation/storefront/pkg/config"
)

// CORS returns middleware that applies the configured allowed origin policy. Credentials are
// allowed so the basket cookie travels with cross-origin storefront requests.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", IdempotencyHeader, "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
