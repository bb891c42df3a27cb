package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBHost           string
	DBPort           string
	DBUser           string
	DBPassword       string
	DBName           string
	DBSSLMode        string
	DBCreateDatabase bool
	DBMaxOpenConns   int

	// Server
	ServerPort  string
	Environment string

	// CORS
	CORSAllowedOrigin string

	// Metrics（空の場合はAPIと同じポートの/metricsで公開する）
	MetricsPort string

	// Rate Limit（req/min、0は無効）
	RateLimitPerMinute int

	// Logging
	LogLevel slog.Level
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// すべての項目にデフォルト値があるため、必須の環境変数はない。
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.DBHost = getEnvString("DB_HOST", "localhost")
	cfg.DBPort = getEnvString("DB_PORT", "5432")
	cfg.DBUser = getEnvString("DB_USER", "postgres")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = getEnvString("DB_NAME", "mahasiswa_db")
	cfg.DBSSLMode = getEnvString("DB_SSLMODE", "disable")
	cfg.DBCreateDatabase = getEnvBool("DB_CREATE_DATABASE", true)
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = BuildDatabaseURL(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
	}

	cfg.ServerPort = serverPortFromEnv()
	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 0)
	cfg.MetricsPort = os.Getenv("METRICS_PORT")

	level, err := parseLogLevel(getEnvString("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if _, err := strconv.Atoi(cfg.ServerPort); err != nil {
		return nil, fmt.Errorf("invalid server port %q: %w", cfg.ServerPort, err)
	}
	if cfg.MetricsPort != "" {
		if _, err := strconv.Atoi(cfg.MetricsPort); err != nil {
			return nil, fmt.Errorf("invalid metrics port %q: %w", cfg.MetricsPort, err)
		}
		if cfg.MetricsPort == cfg.ServerPort {
			return nil, fmt.Errorf("metrics port must differ from server port %q", cfg.ServerPort)
		}
	}

	return cfg, nil
}

// LoadServerPort は.envを含む環境変数からAPIサーバーのポートだけを読み込む。
// healthcheckのように設定全体の検証を必要としない用途向けで、参照順はLoadと同じ。
func LoadServerPort() (string, error) {
	if err := loadDotEnv(); err != nil {
		return "", err
	}
	port := serverPortFromEnv()
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid server port %q: %w", port, err)
	}
	return port, nil
}

// loadDotEnv はカレントディレクトリの.envを読み込む。ファイルがなければ何もしない。
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func serverPortFromEnv() string {
	return getEnvString("SERVER_PORT", getEnvString("PORT", "3001"))
}

// BuildDatabaseURL は個別の接続パラメータからPostgreSQLの接続URLを組み立てる。
func BuildDatabaseURL(host, port, user, password, dbName, sslMode string) string {
	u := &url.URL{
		Scheme:   "postgres",
		Host:     host + ":" + port,
		Path:     "/" + dbName,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

func parseLogLevel(v string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
	}
	return level, nil
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
