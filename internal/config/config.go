package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	SequenceRepo  = "repo"
	SequenceRedis = "redis"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	DefaultBranchID       string
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	VenueTimezone         string
	DefaultCurrency       string
	QuickTicketFee        decimal.Decimal
	LogLevel              string
	LogFormat             string
	OTelServiceName       string
	SequenceBackend       string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		DefaultBranchID:       getEnv("DEFAULT_BRANCH_ID", "main-branch"),
		ReportCacheTTLSeconds: getPositiveInt("REPORT_CACHE_TTL_SECONDS", 60),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:            strings.TrimSpace(os.Getenv("MANAGER_PIN")),
		VenueTimezone:         getEnv("VENUE_TIMEZONE", "Asia/Kathmandu"),
		DefaultCurrency:       strings.ToUpper(getEnv("DEFAULT_CURRENCY", "NPR")),
		QuickTicketFee:        getDecimal("QUICK_TICKET_FEE", decimal.NewFromInt(200)),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
		OTelServiceName:       getEnv("OTEL_SERVICE_NAME", "rinkdesk"),
		SequenceBackend:       strings.ToLower(getEnv("SEQUENCE_BACKEND", SequenceRepo)),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return fallback
	}
	return d
}
