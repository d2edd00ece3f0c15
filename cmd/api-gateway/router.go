package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/dbos-admissions-api/internal/handler"
	"github.com/noah-isme/dbos-admissions-api/internal/middleware"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
	"github.com/noah-isme/dbos-admissions-api/internal/repository"
	"github.com/noah-isme/dbos-admissions-api/internal/service"
	"github.com/noah-isme/dbos-admissions-api/pkg/config"
	"github.com/noah-isme/dbos-admissions-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/dbos-admissions-api/pkg/middleware/cors"
	"github.com/noah-isme/dbos-admissions-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/dbos-admissions-api/pkg/middleware/requestid"
)

type routerDeps struct {
	metrics      *service.MetricsService
	auth         *service.AuthService
	auditLog     *repository.AuditRepository
	intake       *handler.IntakeHandler
	admin        *handler.AdminHandler
	authHandler  *handler.AuthHandler
	notification *handler.NotificationHandler
	files        *handler.FileHandler
	health       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	public := ratelimit.New(ratelimit.Config{RequestsPerSecond: 5, Burst: 30})
	intake := api.Group("/intake", public.Middleware())
	{
		intake.GET("/catalog", deps.intake.Catalog)
		intake.POST("/sessions", deps.intake.Start)
		intake.GET("/sessions/:id", deps.intake.Get)
		intake.PATCH("/sessions/:id/fields", deps.intake.UpdateFields)
		intake.POST("/sessions/:id/subjects", deps.intake.ToggleSubject)
		intake.PUT("/sessions/:id/declarations", deps.intake.SetDeclarations)
		intake.PUT("/sessions/:id/photo", deps.intake.ChoosePhoto)
		intake.POST("/sessions/:id/submit", deps.intake.Submit)
		intake.POST("/sessions/:id/documents", deps.intake.UploadDocument)
		intake.GET("/sessions/:id/checklist", deps.intake.Checklist)
		intake.POST("/sessions/:id/finish", deps.intake.Finish)
		intake.POST("/sessions/:id/reset", deps.intake.Reset)
	}

	api.POST("/notifications/confirmation", public.Middleware(), deps.notification.SendConfirmation)

	if deps.files != nil {
		api.GET("/files", deps.files.Serve)
	}

	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.authHandler.Login)
		auth.POST("/refresh", deps.authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(deps.auth), deps.authHandler.Logout)
		auth.GET("/me", middleware.JWT(deps.auth), deps.authHandler.Me)
	}

	admin := api.Group("/admin", middleware.JWT(deps.auth), middleware.RequireAdmin(deps.auth))
	{
		admin.GET("/applications", deps.admin.List)
		admin.GET("/applications/export",
			middleware.Audit(deps.auditLog, models.AuditActionApplicationExport, models.AuditResourceApplication),
			deps.admin.Export)
		admin.GET("/applications/:id", deps.admin.Detail)
		admin.GET("/applications/:id/edit", deps.admin.BeginEdit)
		admin.PUT("/applications/:id", deps.admin.SaveEdit)
		admin.POST("/applications/:id/approve", deps.admin.Approve)
	}

	return r
}
