package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shenikar/road_hazard_engine/internal/config"
	"github.com/shenikar/road_hazard_engine/internal/evidence"
	v1 "github.com/shenikar/road_hazard_engine/internal/handler/http/v1"
	"github.com/shenikar/road_hazard_engine/internal/metrics"
	"github.com/shenikar/road_hazard_engine/internal/notify"
	"github.com/shenikar/road_hazard_engine/internal/privacy"
	"github.com/shenikar/road_hazard_engine/internal/repository"
	"github.com/shenikar/road_hazard_engine/internal/service"
	"github.com/shenikar/road_hazard_engine/internal/ticketsync"
	"github.com/shenikar/road_hazard_engine/internal/webhook"
	"github.com/shenikar/road_hazard_engine/pkg/logger"
	"github.com/shenikar/road_hazard_engine/pkg/postgres"
	redisclient "github.com/shenikar/road_hazard_engine/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/road_hazard_engine/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
		migrationURL = strings.Replace(migrationURL, "postgresql://", "pgx5://", 1)
	}

	m, err := migrate.New(cfg.MigrationsPath, migrationURL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// integrations - внешние сервисы, подключаемые только при наличии настроек
type integrations struct {
	privacy  service.PrivacyFilter
	syncer   service.TicketSyncer
	evidence service.EvidenceStore
}

func setupIntegrations(ctx context.Context, cfg *config.Config, log *logrus.Logger) (integrations, error) {
	var out integrations

	if cfg.AIEngineURL != "" {
		client, err := privacy.NewClient(cfg.AIEngineURL, cfg.AIEngineTimeout)
		if err != nil {
			return out, fmt.Errorf("privacy filter: %w", err)
		}
		out.privacy = client
		log.Info("Privacy filter enabled")
	}

	if cfg.TicketSyncURL != "" {
		syncer, err := ticketsync.NewHTTPSyncer(cfg.TicketSyncURL, cfg.TicketSyncSystem, cfg.TicketSyncTimeout)
		if err != nil {
			return out, fmt.Errorf("ticket sync: %w", err)
		}
		out.syncer = syncer
		log.WithField("system", cfg.TicketSyncSystem).Info("Ticket sync enabled")
	}

	if cfg.MinioEndpoint != "" {
		store, err := evidence.NewMinioStore(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return out, fmt.Errorf("evidence store: %w", err)
		}
		out.evidence = store
		log.WithField("bucket", cfg.MinioBucket).Info("Evidence store enabled")
	}

	return out, nil
}

// @title Road Hazard Engine API
// @version 1.0
// @description Road hazard deduplication, alerting and repair ticket lifecycle.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск миграций
	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	ext, err := setupIntegrations(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to set up integrations: %v", err)
	}

	metrics.Init()

	// Каналы доставки уведомлений
	hub := notify.NewHub(log)
	defer hub.Close()
	senders := []notify.Sender{hub}
	if cfg.WebhookURL != "" {
		senders = append(senders, webhook.NewSender(webhook.NewRedisWebhookPublisher(redisClient)))
	}
	dispatcher := notify.NewDispatcher(log, cfg.WebhookTimeout, senders...)

	// Инициализация репозиториев
	hazardRepo := repository.NewHazardRepository(dbpool)
	hazardCache := repository.NewHazardCache(redisClient, cfg.HazardCacheTTL)
	users := repository.NewUserDirectory(redisClient)
	alertRepo := repository.NewAlertRepository(dbpool)
	ticketRepo := repository.NewTicketRepository(dbpool)

	// Инициализация сервисов
	alertService := service.NewAlertService(alertRepo, hazardRepo, users, dispatcher, service.AlertConfig{
		TTL:          cfg.AlertTTL,
		RadiusMeters: cfg.AlertRadiusMeters,
		StatsWindow:  cfg.StatsWindow,
	}, log)
	ticketService := service.NewTicketService(ticketRepo, hazardRepo, ext.syncer, ext.evidence, ext.privacy, service.TicketConfig{
		SLA:         cfg.Policy.SLA,
		StatsWindow: cfg.StatsWindow,
	}, log)
	hazardService := service.NewHazardService(hazardRepo, hazardCache, alertService, ticketService, ext.privacy, users, service.HazardConfig{
		Severity:           cfg.Policy.Severity,
		StatsWindow:        cfg.StatsWindow,
		NearbyRadiusMeters: cfg.NearbyDefaultRadiusMeters,
	}, log)

	// Воркер вебхуков записывает брошенные доставки обратно на уведомления
	if cfg.WebhookURL != "" {
		webhookWorker := webhook.NewWebhookWorker(redisClient, alertService, log, cfg)
		webhookWorker.Start(ctx)
	}

	// Инициализация хэндлеров
	handler := v1.NewHandler(hazardService, alertService, ticketService, hub, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	router.Use(metrics.GinMiddleware())
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
