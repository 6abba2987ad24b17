package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	Environment      string
	UserAgent        string
	APIKey           string
	TrustedHeader    string
	Author           string
	RequestTimeout   time.Duration
	SecondaryTimeout time.Duration
	RedisURL         string
	CacheDisabled    bool
	MongoURL         string
	ArchiveEnabled   bool
	ArchiveDatabase  string
	TMDBAPIKey       string
	TMDBBaseURL      string
	DoubanCookie     string
	BangumiUserAgent string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		Environment:      strings.ToLower(getEnv("DEPLOYMENT_ENV", "")),
		UserAgent:        getEnv("USER_AGENT", "Mozilla/5.0 (compatible; pt-gen/2.0)"),
		APIKey:           strings.TrimSpace(os.Getenv("API_KEY")),
		TrustedHeader:    strings.TrimSpace(os.Getenv("TRUSTED_HEADER")),
		Author:           getEnv("AUTHOR", "Rhilip"),
		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		SecondaryTimeout: time.Duration(getEnvInt("SECONDARY_TIMEOUT_SECONDS", 8)) * time.Second,
		RedisURL:         getEnv("REDIS_URL", ""),
		CacheDisabled:    getEnvBool("CACHE_DISABLED", false),
		MongoURL:         getEnv("MONGO_URL", ""),
		ArchiveEnabled:   getEnvBool("ARCHIVE_ENABLED", false),
		ArchiveDatabase:  getEnv("ARCHIVE_DATABASE", "ptgen"),
		TMDBAPIKey:       strings.TrimSpace(os.Getenv("TMDB_API_KEY")),
		TMDBBaseURL:      getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		DoubanCookie:     strings.TrimSpace(os.Getenv("DOUBAN_COOKIE")),
		BangumiUserAgent: getEnv("BANGUMI_USER_AGENT", ""),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
