package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultClerkAPIURL = "https://api.clerk.com/v1"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Webhook
	// WebhookSecretが空の場合でも起動は可能で、Webhook受信時にMISSING_CONFIGURATIONを返す。
	WebhookSecret    string
	WebhookDedupeTTL time.Duration

	// Redis（任意。配信IDの重複排除に使用）
	RedisURL string

	// Clerk
	ClerkIssuer            string
	ClerkJWKSURL           string
	ClerkAuthorizedParties []string
	ClerkSecretKey         string
	ClerkAPIURL            string

	// Todo
	FreeTodoLimit int

	// Rate Limit
	RateLimitGeneral int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ClerkIssuer = strings.TrimRight(os.Getenv("CLERK_ISSUER"), "/")
	if cfg.ClerkIssuer == "" {
		missing = append(missing, "CLERK_ISSUER")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	cfg.WebhookDedupeTTL = getEnvDuration("WEBHOOK_DEDUPE_TTL", 24*time.Hour)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.ClerkJWKSURL = getEnvString("CLERK_JWKS_URL", cfg.ClerkIssuer+"/.well-known/jwks.json")
	cfg.ClerkAuthorizedParties = getEnvList("CLERK_AUTHORIZED_PARTIES")
	cfg.ClerkSecretKey = os.Getenv("CLERK_SECRET_KEY")
	cfg.ClerkAPIURL = strings.TrimRight(getEnvString("CLERK_API_URL", defaultClerkAPIURL), "/")
	cfg.FreeTodoLimit = getEnvInt("FREE_TODO_LIMIT", 3)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を空要素を除いたスライスとして返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
