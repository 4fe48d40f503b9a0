// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	LTIKey string // セッショントークン（ltik）のHS256鍵

	// Platform
	PlatformClientID     string
	PlatformTokenURL     string
	ToolPrivateKeyPath   string
	ToolKeyID            string
	GradeServiceTimeout  time.Duration
	AllowPrivatePlatform bool

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitUpload  int

	// Storage
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicBaseURL   string
	UploadMaxBytes    int64

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// requiredVars は未設定の場合に起動を中止する環境変数。
var requiredVars = []string{
	"DATABASE_URL",
	"LTI_KEY",
	"PLATFORM_CLIENT_ID",
	"PLATFORM_TOKEN_URL",
	"TOOL_PRIVATE_KEY_PATH",
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定の変数をまとめてエラーとして返す。
func Load() (*Config, error) {
	var missing []string
	for _, key := range requiredVars {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		LTIKey:             os.Getenv("LTI_KEY"),
		PlatformClientID:   os.Getenv("PLATFORM_CLIENT_ID"),
		PlatformTokenURL:   os.Getenv("PLATFORM_TOKEN_URL"),
		ToolPrivateKeyPath: os.Getenv("TOOL_PRIVATE_KEY_PATH"),
	}

	// Optional fields with defaults
	cfg.ToolKeyID = getEnvString("TOOL_KEY_ID", "")
	cfg.GradeServiceTimeout = getEnvDuration("GRADE_SERVICE_TIMEOUT", 10*time.Second)
	cfg.AllowPrivatePlatform = getEnvBool("ALLOW_PRIVATE_PLATFORM", false)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3AccessKeyID = getEnvString("S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnvString("S3_SECRET_ACCESS_KEY", "")
	cfg.S3PublicBaseURL = getEnvString("S3_PUBLIC_BASE_URL", "")
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 50<<20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "3000")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// StorageEnabled は録音ファイルの保存先が設定されているかを返す。
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != ""
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
