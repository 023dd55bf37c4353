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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-report-api/api/swagger"
	"github.com/noah-isme/sma-report-api/internal/handler"
	"github.com/noah-isme/sma-report-api/internal/middleware"
	"github.com/noah-isme/sma-report-api/internal/repository"
	"github.com/noah-isme/sma-report-api/internal/service"
	"github.com/noah-isme/sma-report-api/pkg/cache"
	"github.com/noah-isme/sma-report-api/pkg/config"
	"github.com/noah-isme/sma-report-api/pkg/database"
	"github.com/noah-isme/sma-report-api/pkg/export"
	"github.com/noah-isme/sma-report-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-report-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-report-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-report-api/pkg/observability"
)

// @title SMA Report API
// @version 1.0.0
// @description Report cards, subject marks and division ranking for secondary schools
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

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

	flush, err := observability.InitSentry(cfg)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	} else {
		defer flush()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			logr.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	if cfg.Division.PercentBandsWithSum() {
		logr.Warn("DIVISION_AGGREGATE=SUM with bands capped at 100; rescale DIVISION_BANDS to summed marks or most students will be unclassified")
	}

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			cacheSvc = service.NewCacheService(repository.NewCacheRepository(client, logr), metrics, cfg.Cache.TTL, logr, true)
		}
	}

	validate := validator.New()

	yearRepo := repository.NewAcademicYearRepository(db)
	termRepo := repository.NewTermRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	thresholdRepo := repository.NewGradingThresholdRepository(db)
	markRepo := repository.NewMarkRepository(db)
	cardRepo := repository.NewReportCardRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	gradingSvc := service.NewGradingService(thresholdRepo, cacheSvc, validate, logr)
	divisionSvc := service.NewDivisionService(markRepo, studentRepo, cfg.Division, cacheSvc, metrics, export.NewXLSXExporter(), validate, logr)
	markSvc := service.NewMarkService(markRepo, studentRepo, gradingSvc, divisionSvc, validate, logr)
	cardSvc := service.NewReportCardService(cardRepo, studentRepo, metrics, validate, logr)
	documentSvc := service.NewReportDocumentService(cardRepo, studentRepo, markRepo, termRepo, yearRepo, gradingSvc, cfg.Reports.SchoolName, logr)

	handlers := handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		AcademicYear: handler.NewAcademicYearHandler(service.NewAcademicYearService(yearRepo, validate, logr)),
		Term:         handler.NewTermHandler(service.NewTermService(termRepo, yearRepo, validate, logr)),
		Class:        handler.NewClassHandler(service.NewClassService(classRepo, subjectRepo, yearRepo, userRepo, validate, logr)),
		Student:      handler.NewStudentHandler(service.NewStudentService(studentRepo, userRepo, validate, logr)),
		User:         handler.NewUserHandler(service.NewUserService(userRepo, validate, logr)),
		Grading:      handler.NewGradingHandler(gradingSvc),
		Mark:         handler.NewMarkHandler(markSvc),
		Division:     handler.NewDivisionHandler(divisionSvc),
		ReportCard:   handler.NewReportCardHandler(cardSvc, documentSvc),
		Attendance:   handler.NewAttendanceHandler(service.NewAttendanceService(attendanceRepo, studentRepo, validate, logr)),
	}
	metricsHandler := handler.NewMetricsHandler(metrics, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	handler.RegisterRoutes(api, authSvc, handlers)
	api.GET("/metrics/snapshot", middleware.JWT(authSvc), middleware.Permission(service.OpUserRead), metricsHandler.Snapshot)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	case sig := <-shutdown:
		logr.Info("shutdown started", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logr.Error("graceful shutdown failed", zap.Error(err))
			_ = srv.Close()
		}
	}
}
