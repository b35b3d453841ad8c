// Package router wires the HTTP routes, middleware and validators.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/procure/backend/internal/domain/shared/valueobject"
	"github.com/procure/backend/internal/infrastructure/auth"
	"github.com/procure/backend/internal/infrastructure/config"
	"github.com/procure/backend/internal/interfaces/http/handler"
	"github.com/procure/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// Config holds the dependencies of the HTTP router
type Config struct {
	AppConfig          *config.Config
	Logger             *zap.Logger
	JWTService         *auth.JWTService
	RequisitionHandler *handler.RequisitionHandler
	InvoiceHandler     *handler.InvoiceHandler
	SystemHandler      *handler.SystemHandler
}

// New builds the gin engine with all routes registered
func New(cfg Config) *gin.Engine {
	if cfg.AppConfig != nil && cfg.AppConfig.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	registerValidators()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger(cfg.Logger))
	engine.Use(middleware.Recovery(cfg.Logger))
	if cfg.AppConfig != nil {
		engine.Use(middleware.CORS(cfg.AppConfig.HTTP.CORSAllowOrigins))
		if len(cfg.AppConfig.HTTP.TrustedProxies) > 0 {
			_ = engine.SetTrustedProxies(cfg.AppConfig.HTTP.TrustedProxies)
		}
	}

	engine.GET("/health", cfg.SystemHandler.Health)
	engine.GET("/ready", cfg.SystemHandler.Ready)

	api := engine.Group("/api/v1")
	if cfg.JWTService != nil {
		api.Use(middleware.JWTAuthWithConfig(middleware.JWTMiddlewareConfig{
			JWTService: cfg.JWTService,
			Logger:     cfg.Logger,
		}))
	}

	procurement := api.Group("/procurement")
	{
		requisitions := procurement.Group("/requisitions")
		requisitions.POST("", cfg.RequisitionHandler.Create)
		requisitions.GET("", cfg.RequisitionHandler.List)
		requisitions.GET("/:id", cfg.RequisitionHandler.GetByID)
		requisitions.GET("/number/:number", cfg.RequisitionHandler.GetByNumber)
		requisitions.POST("/:id/lines", cfg.RequisitionHandler.AddLine)
		requisitions.DELETE("/:id/lines/:line_id", cfg.RequisitionHandler.RemoveLine)
		requisitions.POST("/:id/submit", cfg.RequisitionHandler.Submit)
		requisitions.POST("/:id/approve", cfg.RequisitionHandler.Approve)
		requisitions.POST("/:id/reject", cfg.RequisitionHandler.Reject)
		requisitions.POST("/:id/clarification", cfg.RequisitionHandler.RequestClarification)
		requisitions.POST("/:id/purchase-order", cfg.RequisitionHandler.CreatePurchaseOrder)

		procurement.GET("/purchase-orders/:id", cfg.RequisitionHandler.GetPurchaseOrder)
	}

	finance := api.Group("/finance")
	{
		invoices := finance.Group("/invoices")
		invoices.POST("", cfg.InvoiceHandler.Capture)
		invoices.GET("", cfg.InvoiceHandler.List)
		invoices.GET("/:id", cfg.InvoiceHandler.GetByID)
		invoices.POST("/:id/match", cfg.InvoiceHandler.RunMatch)
		invoices.GET("/:id/match-results", cfg.InvoiceHandler.ListMatchResults)

		finance.GET("/match-results/:id", cfg.InvoiceHandler.GetMatchResult)
	}

	return engine
}

// registerValidators installs custom binding validators
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("currency", validateCurrency)
	}
}

// validateCurrency accepts only supported ISO currency codes
func validateCurrency(fl validator.FieldLevel) bool {
	return valueobject.Currency(fl.Field().String()).IsValid()
}
