package handlers

import (
	"net/http"

	"github.com/SscSPs/allowance_wallet/cmd/docs"
	portssvc "github.com/SscSPs/allowance_wallet/internal/core/ports/services"
	"github.com/SscSPs/allowance_wallet/internal/middleware"
	"github.com/SscSPs/allowance_wallet/internal/platform/clock"
	"github.com/SscSPs/allowance_wallet/internal/platform/config"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ulule/limiter/v3"
	limitergin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// registerRate bounds anonymous sign-ups per client IP.
const registerRate = "5-M"

// RouteDeps carries the non-service collaborators of the HTTP layer.
type RouteDeps struct {
	// RateStore backs the rate limiters. Defaults to an in-process store.
	RateStore limiter.Store
	Clock     clock.Clock
}

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
	deps RouteDeps,
) error {
	registerValidators()
	if deps.RateStore == nil {
		deps.RateStore = memory.NewStore()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}

	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// Public registration, limited per IP
	registerRateLimit, err := limiter.NewRateFromFormatted(registerRate)
	if err != nil {
		return err
	}
	ipLimiter := limitergin.NewMiddleware(limiter.New(deps.RateStore, registerRateLimit))
	registerPublicAccountRoutes(r, services.Account, ipLimiter)

	// Setup API v1 routes with Auth Middleware, passing service interfaces
	if err := setupAPIV1Routes(r, cfg, services, deps); err != nil {
		return err
	}

	// Swagger routes (typically public or conditionally available)
	setupSwaggerRoutes(r, cfg)
	return nil
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	service *portssvc.ServiceContainer,
	deps RouteDeps,
) error {
	rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
	if err != nil {
		return err
	}

	// Auth first so the limiter can key by account
	v1 := r.Group("/api/v1",
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.RateLimit(limiter.New(deps.RateStore, rate)),
	)

	registerAccountRoutes(v1, service.Account)
	registerLimitWindowRoutes(v1, service.LimitPolicy, service.Ledger, deps.Clock)
	registerTransactionRoutes(v1, service.Enforcement, service.Ledger)
	return nil
}

// setupSwaggerRoutes configures the swagger documentation routes
func setupSwaggerRoutes(r *gin.Engine, cfg *config.Config) {
	if cfg.IsProduction {
		//no swagger in prod
		return
	}
	docs.SwaggerInfo.BasePath = "/api/v1"
	swagger := r.Group("/swagger")
	swagger.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
