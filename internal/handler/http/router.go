package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glamly/auth-service/internal/auth"
	"github.com/glamly/auth-service/internal/service"
	"github.com/glamly/auth-service/pkg/health"
	"github.com/glamly/auth-service/pkg/middleware"
)

// RouterConfig bundles the knobs the router needs beyond its handlers.
type RouterConfig struct {
	CORS           CORSConfig
	Cookies        CookieConfig
	PprofAllowCIDR []string
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	authService *service.AuthService,
	jwtManager *auth.JWTManager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Tracing("auth"))
	r.Use(middleware.PrometheusMetrics("auth"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	if len(cfg.PprofAllowCIDR) > 0 {
		middleware.RegisterPprof(r, cfg.PprofAllowCIDR, logger)
	}

	authHandler := NewAuthHandler(authService, cfg.Cookies, logger)
	oauthHandler := NewOAuthHandler(authService, cfg.Cookies, logger)

	// Public endpoints. Credential responses must never be cached.
	r.Group(func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore())

		r.Post("/authentication_token", authHandler.AuthenticationToken)
		r.Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)
		r.Post("/token/logout", authHandler.Logout)
		r.Post("/token/refresh", authHandler.Refresh)

		r.Get("/auth/{provider}/url", oauthHandler.RedirectURL)
		r.Post("/auth/{provider}/callback", oauthHandler.Callback)
	})

	// Token validator that bridges to our internal JWTManager.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Email:  claims.Email,
			Role:   claims.Role,
		}, nil
	}

	// Authenticated endpoints
	userHandler := NewUserHandler(authService, logger)
	r.Route("/users", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))

		r.Get("/me", userHandler.Me)
		r.Post("/me/logout_all", userHandler.LogoutAll)
	})

	return r
}
