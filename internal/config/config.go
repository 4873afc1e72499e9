package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shenikar/road_hazard_engine/internal/models"
	"github.com/shenikar/road_hazard_engine/internal/risk"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL    string `env:"DATABASE_URL,required"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file://migrations"`
	HTTPPort       string `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string `env:"LOG_FORMAT" envDefault:"json"`

	// Redis Config
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass      string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	HazardCacheTTL time.Duration `env:"HAZARD_CACHE_TTL" envDefault:"5m"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" envDefault:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" envDefault:"1s"`

	// Alerts
	AlertTTL                  time.Duration `env:"ALERT_TTL" envDefault:"24h"`
	AlertRadiusMeters         float64       `env:"ALERT_RADIUS_METERS" envDefault:"500"`
	NearbyDefaultRadiusMeters float64       `env:"NEARBY_DEFAULT_RADIUS_METERS" envDefault:"1000"`

	// Stats Config
	StatsWindow time.Duration `env:"STATS_WINDOW" envDefault:"168h"`

	// External collaborators
	AIEngineURL       string        `env:"AI_ENGINE_URL"`
	AIEngineTimeout   time.Duration `env:"AI_ENGINE_TIMEOUT" envDefault:"10s"`
	TicketSyncURL     string        `env:"TICKET_SYNC_URL"`
	TicketSyncSystem  string        `env:"TICKET_SYNC_SYSTEM" envDefault:"municipal"`
	TicketSyncTimeout time.Duration `env:"TICKET_SYNC_TIMEOUT" envDefault:"10s"`

	// MinIO Config
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"hazard-evidence"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	// API Keys for authentication
	APIKeys []string `env:"API_KEYS" envSeparator:","`

	PolicyFile string `env:"POLICY_FILE"`
	Policy     Policy
}

// Policy - бизнес-таблицы, которые можно переопределить YAML-файлом
type Policy struct {
	SLA      models.SLAPolicy   `yaml:"sla"`
	Severity risk.SeverityTable `yaml:"severity_thresholds"`
}

func DefaultPolicy() Policy {
	return Policy{
		SLA:      models.DefaultSLAPolicy(),
		Severity: risk.DefaultSeverityTable(),
	}
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	policy, err := LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	return cfg, nil
}

// LoadPolicy читает YAML поверх значений по умолчанию. Пустой путь - только значения по умолчанию.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	return policy, nil
}
