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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/hostel-api/api/swagger"
	"github.com/noah-isme/hostel-api/internal/handler"
	"github.com/noah-isme/hostel-api/internal/middleware"
	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/repository"
	"github.com/noah-isme/hostel-api/internal/router"
	"github.com/noah-isme/hostel-api/internal/service"
	"github.com/noah-isme/hostel-api/pkg/cache"
	"github.com/noah-isme/hostel-api/pkg/config"
	"github.com/noah-isme/hostel-api/pkg/database"
	"github.com/noah-isme/hostel-api/pkg/logger"
	"github.com/noah-isme/hostel-api/pkg/mailer"
	"github.com/noah-isme/hostel-api/pkg/oauth"
	"github.com/noah-isme/hostel-api/pkg/storage"
)

// @title Hostel Management API
// @version 1.0.0
// @description Accounts, attendance, mess billing, complaints and announcements for college hostels.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type identityProvider interface {
	AuthURL() (string, error)
	Exchange(ctx context.Context, state, code string) (*models.GoogleProfile, error)
}

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	messRepo := repository.NewMessRepository(db)
	complaintRepo := repository.NewComplaintRepository(db)
	wardenRepo := repository.NewWardenRequestRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	notifier := service.NewNotificationService(mailer.New(cfg.Email, logr), metrics, logr, service.NotificationConfig{
		Workers:    cfg.Email.Workers,
		MaxRetries: cfg.Email.Retries,
		OTPTTL:     cfg.Auth.OTPTTL,
	})
	notifier.Start(ctx)
	defer notifier.Stop()

	var google identityProvider
	if cfg.OAuth.GoogleEnabled {
		google = oauth.NewGoogleProvider(cfg.OAuth)
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, notifier, google, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.Auth.SingleSession,
		OrgEmailDomain:     cfg.Auth.OrgEmailDomain,
		OTPTTL:             cfg.Auth.OTPTTL,
	})
	userSvc := service.NewUserService(userRepo, notifier, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, userRepo, metrics, validate, logr)
	messSvc := service.NewMessService(messRepo, attendanceRepo, userRepo, cfg.Mess, metrics, validate, logr)
	exportSvc := service.NewExportService(messRepo, files, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, validate, logr)
	complaintSvc := service.NewComplaintService(complaintRepo, metrics, validate, logr)
	wardenSvc := service.NewWardenRequestService(wardenRepo, userRepo, notifier, validate, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, userRepo, validate, logr)
	roomSvc := service.NewRoomService(roomRepo, userRepo, validate, logr)
	dashboardSvc := service.NewDashboardService(dashboardRepo, cacheSvc, metrics, cfg.Dashboard.CacheTTL, logr)

	engine := router.New(router.Handlers{
		Auth:           handler.NewAuthHandler(authSvc),
		Users:          handler.NewUserHandler(userSvc),
		Attendance:     handler.NewAttendanceHandler(attendanceSvc),
		Mess:           handler.NewMessHandler(messSvc, exportSvc),
		Complaints:     handler.NewComplaintHandler(complaintSvc),
		WardenRequests: handler.NewWardenRequestHandler(wardenSvc),
		Announcements:  handler.NewAnnouncementHandler(announcementSvc),
		Rooms:          handler.NewRoomHandler(roomSvc),
		Dashboard:      handler.NewDashboardHandler(dashboardSvc),
		Metrics:        handler.NewMetricsHandler(metrics, db),
	}, router.Options{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		Authenticator:  authSvc,
		AuthLimiter:    authLimiter(redisClient, cfg.RateLimit.AuthPerMinute),
		Audit:          userRepo,
		Metrics:        metrics,
		Logger:         logr,
	})

	go cleanupExports(ctx, exportSvc, logr)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logr.Info("server exited")
	return nil
}

// authLimiter shares counters across instances when Redis is available.
func authLimiter(client *redis.Client, perMinute int) middleware.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if client != nil {
		return middleware.NewRedisWindow(client, perMinute)
	}
	return middleware.NewTokenBucket(perMinute, perMinute)
}

func cleanupExports(ctx context.Context, exports *service.ExportService, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(0)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("export cleanup", zap.Int("removed", len(removed)))
			}
		}
	}
}
