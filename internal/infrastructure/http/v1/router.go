// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"stockflow/internal/infrastructure/http/v1/handlers"
	"stockflow/internal/infrastructure/http/v1/middleware"
	"stockflow/pkg/logger"
)

// RouterConfig holds everything the routes are served from.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// Health checks run by /health/ready, keyed by dependency name
	Health map[string]handlers.Check

	Locations handlers.LocationLister
	Catalog   handlers.ProductCatalog
	Previewer handlers.Previewer
	// Policy decides whether a shortage blocks a submission. Nil never blocks.
	Policy handlers.ShortagePolicy

	Transfers   handlers.TransferCreator
	Entries     handlers.EntryService
	Orders      handlers.OrderCreator
	Sessions    handlers.SessionResolver
	OrderConfig handlers.OrderConfig
	Scraps      handlers.ScrapService
	Reports     handlers.MovementReporter

	// Journal serves GET /journal when set
	Journal handlers.JournalLister

	// Idempotency guards POST routes when set
	Idempotency middleware.IdempotencyStore
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Operator())
	router.Use(middleware.ContextLogger(cfg.Logger))
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Health)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerStockRoutes(api, base, cfg)
	registerOperationRoutes(api, base, cfg)

	if cfg.Journal != nil {
		journalHandler := handlers.NewJournalHandler(base, cfg.Journal)
		api.GET("/journal", journalHandler.List)
	}

	return router
}

func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	h := handlers.NewStockHandler(base, cfg.Locations, cfg.Catalog, cfg.Previewer)
	rg.GET("/locations", h.Locations)
	rg.GET("/products", h.Products)
	rg.POST("/stock/preview", h.Preview)
}

func registerOperationRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, cfg RouterConfig) {
	transfers := handlers.NewTransferHandler(base, cfg.Transfers, cfg.Previewer, cfg.Policy)
	rg.POST("/transfers", transfers.Create)

	entries := handlers.NewEntryHandler(base, cfg.Entries)
	rg.POST("/entries/preview", entries.Preview)
	rg.POST("/entries", entries.Create)

	orders := handlers.NewOrderHandler(base, cfg.Orders, cfg.Sessions, cfg.Previewer, cfg.Policy, cfg.OrderConfig)
	rg.POST("/orders", orders.Create)

	scraps := handlers.NewScrapHandler(base, cfg.Scraps)
	rg.POST("/scraps", scraps.Create)
	rg.GET("/scraps/damaged", scraps.Damaged)

	reports := handlers.NewReportHandler(base, cfg.Reports)
	rg.GET("/reports/movements", reports.Movements)
}
