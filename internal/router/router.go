package router

import (
	"time"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"flowzen/internal/config"
	"flowzen/internal/handler"
	"flowzen/internal/infra"
	"flowzen/internal/middleware"
	"flowzen/internal/money"
	"flowzen/internal/repository"
	"flowzen/internal/service"
	"flowzen/internal/worker"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, fiscalCB *infra.Breaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Infrastructure ───────────────────────────────────────────────────────
	fiscalClient := infra.NewFiscalClient(cfg.FiscalGatewayURL)

	acceptable, warning, critical := cfg.VarianceThresholds()
	thresholds := money.Thresholds{
		AcceptableMax: acceptable,
		WarningMax:    warning,
		CriticalMax:   critical,
	}

	// ── Repositories ─────────────────────────────────────────────────────────
	sessionRepo := repository.NewSessionRepository(db)
	saleRepo := repository.NewSaleRepository(db)

	// Worker dispatcher — injected into services that enqueue async jobs
	dispatcher := worker.NewDispatcher(rdb)

	// ── Services ─────────────────────────────────────────────────────────────
	sessionSvc := service.NewSessionService(sessionRepo, saleRepo, thresholds)
	reconcileSvc := service.NewReconcileService(sessionRepo, saleRepo, thresholds)
	fiscalSvc := service.NewFiscalService(saleRepo, fiscalClient, cfg.FiscalSettle(), nil,
		log.With().Str("component", "fiscal").Logger())
	saleSvc := service.NewSaleService(saleRepo, sessionRepo, sessionSvc, dispatcher,
		log.With().Str("component", "sales").Logger())

	// ── Handlers ─────────────────────────────────────────────────────────────
	sessionsH := handler.NewSessionsHandler(sessionSvc)
	salesH := handler.NewSalesHandler(saleSvc)
	fiscalH := handler.NewFiscalHandler(fiscalSvc)
	reportsH := handler.NewReportsHandler(reconcileSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, fiscalCB))

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		// Roles: cashier, supervisor, admin — declared per-endpoint
		sessions := v1.Group("/sessions")
		{
			sessions.POST("/open", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Open)
			sessions.POST("/count", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Count)
			sessions.POST("/verify", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Verify)
			sessions.POST("/variance", middleware.RequireRole("supervisor", "admin"), sessionsH.Variance)
			sessions.POST("/close", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Close)
			sessions.GET("/active", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Active)
			sessions.GET("/history", middleware.RequireRole("supervisor", "admin"), sessionsH.History)
			sessions.GET("/:id", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Get)
			sessions.GET("/:id/audit", middleware.RequireRole("supervisor", "admin"), sessionsH.Audit)
		}

		sales := v1.Group("/sales")
		{
			sales.POST("", middleware.RequireRole("cashier", "supervisor", "admin"), salesH.Record)
			sales.POST("/refund", middleware.RequireRole("supervisor", "admin"), salesH.Refund)
			sales.GET("", middleware.RequireRole("cashier", "supervisor", "admin"), salesH.List)
			sales.GET("/:id", middleware.RequireRole("cashier", "supervisor", "admin"), salesH.Get)
		}

		fiscal := v1.Group("/fiscal", middleware.RequireRole("supervisor", "admin"))
		{
			fiscal.GET("/:sale_id", fiscalH.Status)
			fiscal.POST("/:sale_id/retry", fiscalH.Retry)
		}

		reports := v1.Group("/reports", middleware.RequireRole("supervisor", "admin"))
		{
			reports.GET("/reconciliation/:session_id", reportsH.Reconciliation)
			reports.GET("/period", reportsH.Period)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
