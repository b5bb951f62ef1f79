package handlers

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/moneywise/bank_sync/cmd/docs"
	portssvc "github.com/moneywise/bank_sync/internal/core/ports/services"
	"github.com/moneywise/bank_sync/internal/middleware"
	"github.com/moneywise/bank_sync/internal/platform/config"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
) {
	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	// Webhook ingress is public (providers cannot authenticate with our JWTs)
	// but rate limited per source IP.
	RegisterWebhookRoutes(r, cfg, services.Webhook)

	// Setup API v1 routes with Auth Middleware, passing service interfaces
	setupAPIV1Routes(r, cfg, services)

	// Swagger routes (typically public or conditionally available)
	setupSwaggerRoutes(r, cfg)
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
) {
	// Apply AuthMiddleware to the entire v1 group
	v1 := r.Group("/api/v1", middleware.AuthMiddleware(cfg.JWTSecret))

	registerLinkRoutes(v1, services.Link)
	registerConnectionRoutes(v1, services.Link, services.Sync)
	registerAccountRoutes(v1, services.Link)
}

// RegisterWebhookRoutes mounts the public webhook ingress with per-IP rate
// limiting. Exported so handler tests can mount it in isolation.
func RegisterWebhookRoutes(r *gin.Engine, cfg *config.Config, webhookSvc portssvc.WebhookProcessorSvc) {
	rate, err := limiter.NewRateFromFormatted(cfg.WebhookRateLimit)
	if err != nil {
		log.Printf("Warning: invalid WEBHOOK_RATE_LIMIT %q, falling back to 120-M: %v\n", cfg.WebhookRateLimit, err)
		rate, _ = limiter.NewRateFromFormatted("120-M")
	}
	ipLimiter := limiter.New(memory.NewStore(), rate)

	h := newWebhookHandler(webhookSvc)
	r.POST("/webhooks/:provider", middleware.RateLimit(ipLimiter), h.receiveWebhook)
}

// setupSwaggerRoutes configures the swagger documentation routes
func setupSwaggerRoutes(r *gin.Engine, cfg *config.Config) {
	// Swagger setup
	if cfg.IsProduction {
		//no swagger in prod
		return
	}
	docs.SwaggerInfo.BasePath = "/api/v1"
	swagger := r.Group("/swagger")
	swagger.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
