package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig `mapstructure:"jwt"`
	Log       LogConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Tx        TxConfig
	FreeTier  FreeTierConfig
	Scheduler SchedulerConfig
	Billing   BillingConfig
	Seed      SeedConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxOpen  int
	MaxIdle  int
}

type JWTConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	TokenDuration string `mapstructure:"token_duration"` // e.g. "24h"
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSize    int  // MB
	MaxBackups int
	MaxAge     int  // days
	Compress   bool
	Format     string // json or text
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int // hours
}

// TxConfig bounds the retry loop for serialization failures.
type TxConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// FreeTierConfig is applied to hostels without an ACTIVE subscription.
type FreeTierConfig struct {
	MaxTenants int
	MaxRooms   int
	Features   []string
}

type SchedulerConfig struct {
	OverdueSpec      string
	SubscriptionSpec string
	VisitorSpec      string
}

type BillingConfig struct {
	InvoicePrefix string
	ReceiptPrefix string
	// WebhookSecret signs gateway callbacks; empty disables the check
	WebhookSecret string
}

// SeedConfig is the bootstrap super admin created by the seed command
type SeedConfig struct {
	AdminUsername string
	AdminPassword string
	AdminEmail    string
}

var (
	globalConfig *Config
	once         sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		var err error
		globalConfig, err = LoadConfig()
		if err != nil {
			panic("Failed to load config: " + err.Error())
		}
	})
	return globalConfig
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// comma separated, blanks dropped
func getEnvAsStringArray(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func LoadConfig() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("SERVER_MODE", "debug"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hostelops"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxOpen:  getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdle:  getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		JWT: JWTConfig{
			SecretKey:     getEnv("JWT_SECRET_KEY", "default-secret-change-me"),
			TokenDuration: getEnv("JWT_TOKEN_DURATION", "24h"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/app.log"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
			Format:     getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "hostelops:queue"),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsStringArray("CORS_ALLOW_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsStringArray("CORS_ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowHeaders:     getEnvAsStringArray("CORS_ALLOW_HEADERS", []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"}),
			ExposeHeaders:    getEnvAsStringArray("CORS_EXPOSE_HEADERS", []string{"Content-Length", "Content-Type"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 12),
		},
		Tx: TxConfig{
			MaxRetries:     getEnvAsInt("TX_MAX_RETRIES", 3),
			RetryBaseDelay: getEnvAsDuration("TX_RETRY_BASE_DELAY", 20*time.Millisecond),
		},
		FreeTier: FreeTierConfig{
			MaxTenants: getEnvAsInt("FREE_TIER_MAX_TENANTS", 10),
			MaxRooms:   getEnvAsInt("FREE_TIER_MAX_ROOMS", 5),
			Features:   getEnvAsStringArray("FREE_TIER_FEATURES", []string{}),
		},
		Scheduler: SchedulerConfig{
			OverdueSpec:      getEnv("SWEEP_OVERDUE_CRON", "@every 1h"),
			SubscriptionSpec: getEnv("SWEEP_SUBSCRIPTION_CRON", "@every 1h"),
			VisitorSpec:      getEnv("SWEEP_VISITOR_CRON", "@daily"),
		},
		Billing: BillingConfig{
			InvoicePrefix: getEnv("INVOICE_PREFIX", "INV"),
			ReceiptPrefix: getEnv("RECEIPT_PREFIX", "RCP"),
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		},
		Seed: SeedConfig{
			AdminUsername: getEnv("SEED_ADMIN_USERNAME", "admin"),
			AdminPassword: getEnv("SEED_ADMIN_PASSWORD", "admin123456"),
			AdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@hostelops.local"),
		},
	}

	return config, nil
}
