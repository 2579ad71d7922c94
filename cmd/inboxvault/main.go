package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/inboxvault/inboxvault/api/swagger"
	"github.com/inboxvault/inboxvault/internal/handler"
	"github.com/inboxvault/inboxvault/internal/liveview"
	"github.com/inboxvault/inboxvault/internal/middleware"
	"github.com/inboxvault/inboxvault/internal/reconcile"
	"github.com/inboxvault/inboxvault/internal/repository"
	"github.com/inboxvault/inboxvault/internal/service"
	"github.com/inboxvault/inboxvault/internal/store"
	"github.com/inboxvault/inboxvault/pkg/cache"
	"github.com/inboxvault/inboxvault/pkg/config"
	"github.com/inboxvault/inboxvault/pkg/database"
	"github.com/inboxvault/inboxvault/pkg/logger"
	corsmiddleware "github.com/inboxvault/inboxvault/pkg/middleware/cors"
	reqidmiddleware "github.com/inboxvault/inboxvault/pkg/middleware/requestid"
	"github.com/inboxvault/inboxvault/pkg/storage"
)

// @title InboxVault API
// @version 0.1.0
// @description Archive control surface for live conversation lists
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis unavailable", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	guard := store.NewGuard()
	medium := store.NewRedisMedium(redisClient, cfg.Vault, logr)
	vault := store.New(medium, guard, logr)
	if err := vault.Load(ctx); err != nil {
		logr.Sugar().Fatalw("failed to load archive", "error", err)
	}

	changes, err := medium.Subscribe(ctx)
	if err != nil {
		logr.Sugar().Fatalw("failed to subscribe to archive changes", "error", err)
	}

	metricsSvc := service.NewMetricsService()
	bridge := liveview.NewBridge(logr)
	reconciler := reconcile.New(bridge, vault, guard, changes, cfg.Reconciler, metricsSvc, logr)
	go func() {
		if err := reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Sugar().Errorw("reconciler stopped", "error", err)
		}
	}()

	auditSvc := buildAuditService(cfg, logr)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	exportStorage, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}

	authSvc := service.NewAuthService(cfg.JWT, cfg.Auth, auditSvc, logr)
	archiveSvc := service.NewArchiveService(vault, bridge, reconciler, auditSvc, metricsSvc, logr)
	listingSvc := service.NewListingService(vault, logr)
	exportSvc := service.NewExportService(vault, reconciler, exportStorage, auditSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	archiveHandler := handler.NewArchiveHandler(handler.ArchiveHandlerServices{
		Archive: archiveSvc,
		Listing: listingSvc,
	})
	exportHandler := handler.NewExportHandler(exportSvc)
	viewHandler := handler.NewViewHandler(bridge, vault, metricsSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	{
		protected.GET("/auth/me", authHandler.Me)
		protected.GET("/archive", archiveHandler.List)
		protected.POST("/archive", archiveHandler.Archive)
		protected.DELETE("/archive", archiveHandler.Clear)
		protected.POST("/archive/restore", archiveHandler.Restore)
		protected.PUT("/archive/:id/notes", archiveHandler.SetNotes)
		protected.GET("/archive/export", exportHandler.Export)
		protected.POST("/archive/import", exportHandler.Import)
		protected.GET("/view/items", viewHandler.Snapshot)
		protected.POST("/view/items", viewHandler.Ingest)
		protected.GET("/audit", auditHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "records", vault.Len())
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// buildAuditService degrades to a disabled service when the database
// is unreachable so the archive API keeps working without its trail.
func buildAuditService(cfg *config.Config, logr *zap.Logger) *service.AuditService {
	if !cfg.Audit.Enabled {
		return service.NewAuditService(nil, cfg.Audit, logr)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Warnw("audit database unavailable, audit trail disabled", "error", err)
		return service.NewAuditService(nil, cfg.Audit, logr)
	}

	return service.NewAuditService(repository.NewAuditRepository(db), cfg.Audit, logr)
}
