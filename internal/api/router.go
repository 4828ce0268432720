package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/fulfillment/internal/api/handlers"
	"github.com/jafarshop/fulfillment/internal/api/middleware"
	"github.com/jafarshop/fulfillment/internal/config"
	"github.com/jafarshop/fulfillment/internal/domain"
	"github.com/jafarshop/fulfillment/internal/repository"
	"github.com/jafarshop/fulfillment/internal/service"
)

// Services bundles the service layer for route wiring
type Services struct {
	Orders     *service.OrderService
	Violations *service.ViolationService
	Escalation *service.EscalationService
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, repos *repository.Repositories, svcs *Services, logger *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := router.Group("/v1")
	{
		// Authenticated routes (dealer key or admin key)
		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(cfg, repos, logger))
		authed.Use(middleware.IdempotencyMiddleware(repos, logger))
		{
			authed.POST("/orders", handlers.HandleAcceptOrder(svcs.Orders, repos, logger))
			authed.GET("/orders/:id", handlers.HandleGetOrder(svcs.Orders, logger))
			authed.GET("/orders/:id/status-breakdown", handlers.HandleStatusBreakdown(svcs.Orders, logger))

			authed.POST("/orders/:id/sku/:sku/pack", handlers.HandleSkuTransition(svcs.Orders, domain.SkuStatusPacked, logger))
			authed.POST("/orders/:id/sku/:sku/ship", handlers.HandleSkuTransition(svcs.Orders, domain.SkuStatusShipped, logger))
			authed.POST("/orders/:id/sku/:sku/deliver", handlers.HandleSkuTransition(svcs.Orders, domain.SkuStatusDelivered, logger))
			authed.POST("/orders/:id/sku/:sku/cancel", handlers.HandleSkuTransition(svcs.Orders, domain.SkuStatusCancelled, logger))
			authed.POST("/orders/:id/sku/:sku/return", handlers.HandleSkuTransition(svcs.Orders, domain.SkuStatusReturned, logger))
			authed.PUT("/orders/:id/sku/:sku/tracking", handlers.HandleUpdateTracking(svcs.Orders, logger))
		}

		// Ops routes (admin key required)
		ops := v1.Group("")
		ops.Use(middleware.AuthMiddleware(cfg, repos, logger))
		ops.Use(middleware.AdminOnly())
		{
			ops.GET("/sla-violations", handlers.HandleListViolations(svcs.Violations, logger))
			ops.PUT("/sla-violations/:id/resolve", handlers.HandleResolveViolation(svcs.Violations, logger))

			ops.PUT("/dealers/:id/disable", handlers.HandleDisableDealer(svcs.Escalation, logger))
			ops.POST("/dealers/disable-bulk", handlers.HandleBulkDisable(svcs.Escalation, logger))
			ops.GET("/dealers/:id/ledger", handlers.HandleDealerLedger(svcs.Escalation, logger))
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg, repos, logger))
		admin.Use(middleware.AdminOnly())
		{
			admin.GET("/orders", handlers.HandleListOrders(svcs.Orders, logger))
			admin.GET("/orders/:id/audit", handlers.HandleOrderAudit(repos, logger))
			admin.POST("/orders/:id/status", handlers.HandleOverrideStatus(svcs.Orders, logger))
			admin.POST("/assignments/:id/reassign", handlers.HandleReassignAssignment(svcs.Orders, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
		)
	}
}
