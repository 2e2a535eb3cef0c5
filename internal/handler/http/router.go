package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manacity/address-service/internal/auth"
	"github.com/manacity/address-service/internal/service"
	"github.com/manacity/address-service/pkg/health"
	"github.com/manacity/address-service/pkg/middleware"
)

// NewRouter creates a chi router with all address service routes registered.
func NewRouter(
	addressService *service.AddressService,
	jwtManager *auth.JWTManager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("address"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Token validator that bridges to our internal JWTManager.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Phone:  claims.Phone,
			Role:   claims.Role,
		}, nil
	}

	// Address book endpoints (auth required)
	addressHandler := NewAddressHandler(addressService, logger)

	r.Route("/api/v1/addresses", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))

		r.Get("/", addressHandler.List)
		r.Post("/", addressHandler.Create)
		r.Patch("/{id}/default", addressHandler.SetDefault)
		r.Post("/capture", addressHandler.Capture)
	})

	return r
}
