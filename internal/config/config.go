// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	// コンテナイメージにタイムゾーンデータベースがなくてもSCHOOL_TIMEZONEを解決できるようにする
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// WhatsApp
	WhatsAppAuthDir        string
	WhatsAppReconnectDelay time.Duration
	WhatsAppQueryTimeout   time.Duration
	NotifyGroupID          string

	// Attendance
	SchoolTimezone string
	Location       *time.Location
	AbsenceMarkAt  string

	// Rate Limit
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// LoadDotEnv は.envファイルが存在する場合に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルがない場合はfalseを返す。
func LoadDotEnv(path string) (bool, error) {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return true, nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.WhatsAppAuthDir = os.Getenv("WHATSAPP_AUTH_DIR")
	if cfg.WhatsAppAuthDir == "" {
		missing = append(missing, "WHATSAPP_AUTH_DIR")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.RateLimitMax = getEnvInt("RATE_LIMIT_MAX", 100)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 8*time.Hour)
	cfg.SchoolTimezone = getEnvString("SCHOOL_TIMEZONE", "America/Mexico_City")
	cfg.NotifyGroupID = strings.TrimSpace(os.Getenv("NOTIFY_GROUP_ID"))
	cfg.WhatsAppReconnectDelay = getEnvDuration("WHATSAPP_RECONNECT_DELAY", 5*time.Second)
	cfg.WhatsAppQueryTimeout = getEnvDuration("WHATSAPP_QUERY_TIMEOUT", 60*time.Second)
	cfg.AbsenceMarkAt = getEnvString("ABSENCE_MARK_AT", "09:00")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	loc, err := time.LoadLocation(cfg.SchoolTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHOOL_TIMEZONE %q: %w", cfg.SchoolTimezone, err)
	}
	cfg.Location = loc

	if _, err := time.Parse("15:04", cfg.AbsenceMarkAt); err != nil {
		return nil, fmt.Errorf("invalid ABSENCE_MARK_AT %q (want HH:MM)", cfg.AbsenceMarkAt)
	}
	if cfg.NotifyGroupID != "" && !strings.HasSuffix(cfg.NotifyGroupID, "@g.us") {
		return nil, fmt.Errorf("invalid NOTIFY_GROUP_ID %q (want <id>@g.us)", cfg.NotifyGroupID)
	}
	if cfg.RateLimitMax <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX and RATE_LIMIT_WINDOW must be positive")
	}

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
