// Package config assembles the runtime configuration from defaults, an
// optional .env file and TAMWEEL_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/tamweel/internal/domain"
)

// Environment variable names.
const (
	EnvTier           = "TAMWEEL_TIER"
	EnvDebug          = "TAMWEEL_DEBUG"
	EnvLogFormat      = "TAMWEEL_LOG_FORMAT"
	EnvHost           = "TAMWEEL_HOST"
	EnvPort           = "TAMWEEL_PORT"
	EnvSQLitePath     = "TAMWEEL_SQLITE_PATH"
	EnvPostgresHost   = "TAMWEEL_POSTGRES_HOST"
	EnvPostgresPort   = "TAMWEEL_POSTGRES_PORT"
	EnvPostgresUser   = "TAMWEEL_POSTGRES_USER"
	EnvPostgresPass   = "TAMWEEL_POSTGRES_PASSWORD"
	EnvPostgresDB     = "TAMWEEL_POSTGRES_DB"
	EnvPostgresSSL    = "TAMWEEL_POSTGRES_SSLMODE"
	EnvCacheType      = "TAMWEEL_CACHE_TYPE"
	EnvCacheSize      = "TAMWEEL_CACHE_SIZE"
	EnvResultTTL      = "TAMWEEL_RESULT_TTL"
	EnvRedisAddr      = "TAMWEEL_REDIS_ADDR"
	EnvRedisPassword  = "TAMWEEL_REDIS_PASSWORD"
	EnvNATSUrl        = "TAMWEEL_NATS_URL"
	EnvNATSToken      = "TAMWEEL_NATS_TOKEN"
	EnvWorker         = "TAMWEEL_WORKER"
	EnvWorkerCount    = "TAMWEEL_WORKER_CONCURRENCY"
	EnvBank           = "TAMWEEL_BANK"
	EnvTracing        = "TAMWEEL_TRACING"
	EnvServiceName    = "TAMWEEL_SERVICE_NAME"
	EnvRulesMaxWorker = "TAMWEEL_RULES_WORKERS"
)

// LoadEnv loads variables from the given .env files, or ./.env when none
// are given. A missing file is not an error.
func LoadEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("no .env file found")
			return
		}
		slog.Warn("failed to load .env file", "error", err)
	}
}

// Load returns the tier defaults with environment overrides applied.
func Load(files ...string) *domain.Config {
	LoadEnv(files...)

	cfg := domain.DefaultConfig()
	if strings.EqualFold(GetEnv(EnvTier, ""), string(domain.TierPro)) {
		cfg = domain.ProConfig()
	}

	applyOverrides(cfg)
	return cfg
}

func applyOverrides(cfg *domain.Config) {
	if GetBoolEnv(EnvDebug, false) {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Format = GetEnv(EnvLogFormat, cfg.Logging.Format)

	cfg.Server.Host = GetEnv(EnvHost, cfg.Server.Host)
	cfg.Server.Port = GetIntEnv(EnvPort, cfg.Server.Port)

	cfg.Repository.SQLitePath = GetEnv(EnvSQLitePath, cfg.Repository.SQLitePath)
	cfg.Repository.PostgresHost = GetEnv(EnvPostgresHost, cfg.Repository.PostgresHost)
	cfg.Repository.PostgresPort = GetIntEnv(EnvPostgresPort, cfg.Repository.PostgresPort)
	cfg.Repository.PostgresUser = GetEnv(EnvPostgresUser, cfg.Repository.PostgresUser)
	cfg.Repository.PostgresPassword = GetEnv(EnvPostgresPass, cfg.Repository.PostgresPassword)
	cfg.Repository.PostgresDB = GetEnv(EnvPostgresDB, cfg.Repository.PostgresDB)
	cfg.Repository.PostgresSSLMode = GetEnv(EnvPostgresSSL, cfg.Repository.PostgresSSLMode)

	cfg.Cache.Type = GetEnv(EnvCacheType, cfg.Cache.Type)
	cfg.Cache.LocalMaxSize = GetIntEnv(EnvCacheSize, cfg.Cache.LocalMaxSize)
	cfg.Cache.ResultTTL = GetDurationEnv(EnvResultTTL, cfg.Cache.ResultTTL)
	cfg.Cache.RedisAddr = GetEnv(EnvRedisAddr, cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = GetEnv(EnvRedisPassword, cfg.Cache.RedisPassword)

	cfg.EventBus.NATSUrl = GetEnv(EnvNATSUrl, cfg.EventBus.NATSUrl)
	cfg.EventBus.NATSToken = GetEnv(EnvNATSToken, cfg.EventBus.NATSToken)

	cfg.Worker.Enabled = GetBoolEnv(EnvWorker, cfg.Worker.Enabled)
	cfg.Worker.Concurrency = GetIntEnv(EnvWorkerCount, cfg.Worker.Concurrency)

	cfg.Platform.Bank = GetEnv(EnvBank, cfg.Platform.Bank)
	cfg.Tracing.Enabled = GetBoolEnv(EnvTracing, cfg.Tracing.Enabled)
	cfg.Tracing.ServiceName = GetEnv(EnvServiceName, cfg.Tracing.ServiceName)
}

// RulesWorkers returns the screening engine's parallelism.
func RulesWorkers() int {
	return GetIntEnv(EnvRulesMaxWorker, 10)
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetBoolEnv returns a bool environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// GetDurationEnv returns a duration environment variable ("90s", "1h") or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
