package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/dbos-admissions-api/api/swagger"
	"github.com/noah-isme/dbos-admissions-api/internal/handler"
	"github.com/noah-isme/dbos-admissions-api/internal/repository"
	"github.com/noah-isme/dbos-admissions-api/internal/service"
	"github.com/noah-isme/dbos-admissions-api/pkg/cache"
	"github.com/noah-isme/dbos-admissions-api/pkg/config"
	"github.com/noah-isme/dbos-admissions-api/pkg/database"
	"github.com/noah-isme/dbos-admissions-api/pkg/export"
	"github.com/noah-isme/dbos-admissions-api/pkg/jobs"
	"github.com/noah-isme/dbos-admissions-api/pkg/logger"
	"github.com/noah-isme/dbos-admissions-api/pkg/mailer"
	"github.com/noah-isme/dbos-admissions-api/pkg/storage"
)

// @title DBOS Admissions API
// @version 1.0.0
// @description Admission intake form, document uploads and admin review
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.MigrationsDir, logr); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	store, files, err := newObjectStore(cfg)
	if err != nil {
		logr.Fatal("failed to init object store", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	applicationRepo := repository.NewApplicationRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	draftRepo := repository.NewDraftRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Intake.ListCacheTTL, logr, cfg.Intake.CacheEnabled)

	sender := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:      cfg.Mail.Host,
		Port:      cfg.Mail.Port,
		Username:  cfg.Mail.Username,
		Password:  cfg.Mail.Password,
		FromName:  cfg.Mail.FromName,
		FromEmail: cfg.Mail.FromEmail,
		UseTLS:    cfg.Mail.UseTLS,
		Timeout:   cfg.Mail.SendTimeout,
	}, logr)
	notificationSvc := service.NewNotificationService(sender, metrics, validate, logr, service.NotificationConfig{
		AdminEmail: cfg.Mail.AdminEmail,
		PublicURL:  cfg.PublicURL,
	})

	var confirmations interface{ TryEnqueue(jobs.Job) error }
	if cfg.Mail.EnableWorkers {
		worker := service.NewNotificationWorker(notificationSvc, logr)
		mailQueue := jobs.NewQueue("mail", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Mail.Workers,
			MaxRetries: cfg.Mail.MaxRetries,
			RetryDelay: cfg.Mail.RetryDelay,
			JobTimeout: cfg.Mail.SendTimeout,
			Logger:     logr,
			OnGiveUp: func(job jobs.Job, err error) {
				metrics.RecordMail(service.ResultFailure)
				logr.Error("confirmation mail dropped", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
			},
		})
		mailQueue.Start(ctx)
		defer mailQueue.Stop()
		confirmations = mailQueue
	}

	intakeSvc := service.NewIntakeService(draftRepo, applicationRepo, uploadRepo, store, confirmations, cacheSvc, metrics, validate, logr, service.IntakeConfig{
		DraftTTL: cfg.Intake.DraftTTL,
		Photo: storage.PhotoOptions{
			MaxEdge:  cfg.Storage.PhotoMaxEdge,
			MaxBytes: cfg.Storage.MaxImageBytes,
		},
		Policy: storage.UploadPolicy{
			AllowedMIMEs:     cfg.Storage.AllowedMIMEs,
			MaxImageBytes:    cfg.Storage.MaxImageBytes,
			MaxDocumentBytes: cfg.Storage.MaxDocumentBytes,
		},
	})
	adminSvc := service.NewAdminService(applicationRepo, uploadRepo, auditRepo, store, cacheSvc, export.NewCSVExporter(true), logr, service.AdminConfig{
		ListCacheTTL: cfg.Intake.ListCacheTTL,
	})
	authSvc := service.NewAuthService(userRepo, auditRepo, cacheRepo, service.NewAdminGate(cfg.Admin.AllowedDomains, cfg.Admin.AllowedEmails), validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		LoginAttempts:      cfg.Admin.LoginAttempts,
		LoginWindow:        cfg.Admin.LoginWindow,
	})

	r := newRouter(cfg, logr, routerDeps{
		metrics:      metrics,
		auth:         authSvc,
		auditLog:     auditRepo,
		intake:       handler.NewIntakeHandler(intakeSvc),
		admin:        handler.NewAdminHandler(adminSvc),
		authHandler:  handler.NewAuthHandler(authSvc),
		notification: handler.NewNotificationHandler(notificationSvc),
		files:        files,
		health:  handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"postgres": db.PingContext,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		}),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      2 * cfg.RequestTimeout,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newObjectStore picks the storage driver. The file handler is only returned
// for the local driver, S3 links are served by the bucket itself.
func newObjectStore(cfg *config.Config) (storage.ObjectStore, *handler.FileHandler, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverS3:
		store, err := storage.NewS3Store(storage.S3Config{
			Bucket:     cfg.Storage.S3Bucket,
			Region:     cfg.Storage.S3Region,
			AccessKey:  cfg.Storage.S3AccessKey,
			SecretKey:  cfg.Storage.S3SecretKey,
			Endpoint:   cfg.Storage.S3Endpoint,
			PresignTTL: cfg.Storage.S3PresignTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case config.StorageDriverLocal, "":
		signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)
		store, err := storage.NewLocalStorage(cfg.Storage.LocalDir, cfg.PublicURL+cfg.APIPrefix+"/files", signer)
		if err != nil {
			return nil, nil, err
		}
		return store, handler.NewFileHandler(store), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
