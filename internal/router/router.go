package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ibrahim-sultan/examPro/internal/config"
	"github.com/ibrahim-sultan/examPro/internal/handler"
	"github.com/ibrahim-sultan/examPro/internal/i18n"
	"github.com/ibrahim-sultan/examPro/internal/middleware"
	"github.com/ibrahim-sultan/examPro/internal/model"
	"github.com/ibrahim-sultan/examPro/internal/response"
	"github.com/ibrahim-sultan/examPro/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Monitor *handler.MonitorHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	locales *i18n.Bundle,
	eventLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request ID and language negotiation apply to every response envelope.
	router.Use(response.RequestIDMiddleware())
	router.Use(locales.Middleware())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Student Session Group (JWT) ────────────────────────────────
	results := router.Group("/api/v1/results")
	results.Use(middleware.RequireStudentJWT(authService), middleware.NoStore())
	{
		results.POST("/start/:exam_id", handlers.Session.Start)
		results.POST("/submit/:session_id", handlers.Session.Submit)
		results.GET("/:session_id", handlers.Session.GetResult)
		results.GET("/:session_id/state", handlers.Session.GetState)
	}

	// ─── 2. Student Telemetry (JWT, rate limited per student) ──────────
	telemetry := router.Group("/api/v1/monitor")
	telemetry.Use(middleware.RequireStudentJWT(authService), eventLimiter.Middleware())
	{
		telemetry.POST("/events", handlers.Session.RecordEvent)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Monitor Group (JWT + RBAC) ───────────────────────────
	monitor := router.Group("/api/v1/monitor")
	monitor.Use(middleware.RequireAdminJWT(authService))
	{
		monitor.GET("/ongoing",
			middleware.RequirePermission(model.PermissionSessionsMonitor),
			middleware.Brotli(),
			handlers.Monitor.ListOngoing,
		)
		monitor.GET("/exams/:exam_id/stream",
			middleware.RequirePermission(model.PermissionSessionsMonitor),
			handlers.Monitor.StreamExam,
		)
		monitor.GET("/results/:session_id",
			middleware.RequirePermission(model.PermissionSessionsMonitor),
			middleware.NoStore(),
			handlers.Monitor.GetResult,
		)
		monitor.POST("/force-submit/:session_id",
			middleware.RequirePermission(model.PermissionSessionsControl),
			handlers.Monitor.ForceSubmit,
		)
		monitor.POST("/suspend/:session_id",
			middleware.RequirePermission(model.PermissionSessionsControl),
			handlers.Monitor.Suspend,
		)
	}

	return router
}
