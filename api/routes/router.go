package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/certify-backend/api/controllers"
	"github.com/angelmondragon/certify-backend/api/middleware"
	"github.com/angelmondragon/certify-backend/internal/auth"
	"github.com/angelmondragon/certify-backend/internal/certificates"
	"github.com/angelmondragon/certify-backend/pkg/auth/session"
	"github.com/angelmondragon/certify-backend/pkg/config"
	"github.com/angelmondragon/certify-backend/pkg/db"
	"github.com/angelmondragon/certify-backend/pkg/enums"
	"github.com/angelmondragon/certify-backend/pkg/logger"
	"github.com/angelmondragon/certify-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/certify-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

// RedisStore is the slice of the Redis client the HTTP layer uses. A nil
// store disables rate limiting and idempotency.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	pkgredis.Pinger
}

// Observability carries the optional metrics wiring.
type Observability struct {
	HTTP    *metrics.HTTPMetrics
	Handler http.Handler
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	sessionManager sessionManager,
	authService auth.Service,
	registerService auth.RegisterService,
	roleService auth.RoleService,
	certificateService certificates.Service,
	obs Observability,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(obs.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	var (
		limiter   pkgredis.RateLimiter
		idemStore pkgredis.IdempotencyStore
	)
	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["database"] = dbP
	}
	if redisStore != nil {
		limiter = redisStore
		idemStore = redisStore
		deps["redis"] = redisStore
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps, logg))
	})
	if obs.Handler != nil {
		r.Method(http.MethodGet, "/metrics", obs.Handler)
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.With(
			middleware.RateLimit(registerPolicy, limiter, logg),
			middleware.Idempotency(idemStore, cfg.Eventing.IdempotencyTTL, logg),
		).Post("/register", controllers.AuthRegister(registerService, authService, logg))
		r.Post("/logout", controllers.AuthLogout(sessionManager, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(sessionManager, cfg.JWT, logg))
	})

	requireAuth := middleware.Auth(cfg.JWT, sessionManager, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, sessionManager, logg)
	verifyPolicy := middleware.NewRateLimitPolicy("verify", cfg.VerifyRateLimit.Window, cfg.VerifyRateLimit.IPLimit, 0)
	verifyLimit := middleware.RateLimit(verifyPolicy, limiter, logg)

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(requireAuth)
		r.Use(middleware.RequireRole(enums.SystemRoleAdmin, logg))
		r.Put("/{id}/role", controllers.AssignUserRole(roleService, logg))
	})

	r.Route("/api/v1/certificates", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/", controllers.ListCertificates(certificateService, logg))
			r.With(verifyLimit).Get("/verify/{identifier}", controllers.VerifyCertificate(certificateService, logg))
			r.Get("/{id}", controllers.GetCertificate(certificateService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(middleware.Idempotency(idemStore, cfg.Eventing.IdempotencyTTL, logg))
			r.With(middleware.RequireAnyRole(logg, enums.SystemRoleAdmin, enums.SystemRoleIssuer)).Post("/", controllers.IssueCertificate(certificateService, logg))
			r.Get("/recipient/{email}", controllers.ListRecipientCertificates(certificateService, logg))
			r.Patch("/{id}", controllers.UpdateCertificate(certificateService, logg))
			r.Post("/{id}/revoke", controllers.RevokeCertificate(certificateService, logg))
			r.Get("/{id}/verifications", controllers.CertificateVerifications(certificateService, logg))
			r.With(middleware.RequireRole(enums.SystemRoleAdmin, logg)).Delete("/{id}", controllers.DeleteCertificate(certificateService, logg))
		})
	})

	return r
}
