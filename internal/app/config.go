package app

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"fitspot/placesearch/internal/domain"
)

type Config struct {
	HTTPAddr            string
	RequestTimeout      time.Duration
	LogLevel            string
	LogFormat           string
	GoogleAPIKey        string
	GoogleBaseURL       string
	Language            string
	Region              string
	DefaultCategory     string
	CategoryOverrides   string
	DefaultRadiusMeters int
	MaxInFlight         int
	TravelMode          domain.TravelMode
	StraightLine        bool
	CacheMaxEntries     int
	CacheTTL            time.Duration
	RedisURL            string
	ProviderRPS         float64
	ProviderBurst       int
	CircuitBreaker      bool
	SessionIdleTTL      time.Duration
	HTTPRateLimitRPS    float64
	HTTPRateLimitBurst  int
}

// LogValue reports the settings worth seeing at startup. Secrets and URLs
// are reduced to whether they are set.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("httpAddr", c.HTTPAddr),
		slog.String("logLevel", c.LogLevel),
		slog.Duration("requestTimeout", c.RequestTimeout),
		slog.Bool("hasGoogleKey", c.GoogleAPIKey != ""),
		slog.String("travelMode", string(c.TravelMode)),
		slog.Bool("straightLineFallback", c.StraightLine),
		slog.Int("maxInFlight", c.MaxInFlight),
		slog.Bool("circuitBreaker", c.CircuitBreaker),
		slog.Bool("hasRedis", strings.TrimSpace(c.RedisURL) != ""),
		slog.Duration("cacheTTL", c.CacheTTL),
	)
}

// LoadEnvFiles reads .env style files into the process environment. Missing
// files are ignored and variables already set are never overwritten.
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8090"),
		RequestTimeout:      time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "text")),
		GoogleAPIKey:        strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY")),
		GoogleBaseURL:       getEnv("GOOGLE_MAPS_BASE_URL", ""),
		Language:            getEnv("PLACES_LANGUAGE", ""),
		Region:              getEnv("PLACES_REGION", ""),
		DefaultCategory:     getEnv("SEARCH_DEFAULT_CATEGORY", ""),
		CategoryOverrides:   getEnv("SEARCH_CATEGORIES", ""),
		DefaultRadiusMeters: getEnvInt("SEARCH_DEFAULT_RADIUS_METERS", 5000),
		MaxInFlight:         getEnvInt("ENRICH_MAX_IN_FLIGHT", 8),
		TravelMode:          domain.NormalizeTravelMode(strings.ToLower(getEnv("DISTANCE_TRAVEL_MODE", "driving"))),
		StraightLine:        getEnvBool("DISTANCE_STRAIGHT_LINE_FALLBACK", false),
		CacheMaxEntries:     getEnvInt("RESULT_CACHE_MAX_ENTRIES", 2000),
		CacheTTL:            time.Duration(getEnvInt("RESULT_CACHE_TTL_HOURS", 24)) * time.Hour,
		RedisURL:            getEnv("REDIS_URL", ""),
		ProviderRPS:         getEnvFloat("PROVIDER_RPS", 10),
		ProviderBurst:       getEnvInt("PROVIDER_BURST", 20),
		CircuitBreaker:      getEnvBool("PROVIDER_CIRCUIT_BREAKER", true),
		SessionIdleTTL:      time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 30)) * time.Minute,
		HTTPRateLimitRPS:    getEnvFloat("HTTP_RATE_LIMIT_RPS", 50),
		HTTPRateLimitBurst:  getEnvInt("HTTP_RATE_LIMIT_BURST", 100),
	}
}

// ParseCategoryOverrides reads "name=type:keyword;name=type:keyword". The type
// part may be empty ("pool=:swimming pool"); a missing keyword defaults to the name.
func ParseCategoryOverrides(raw string) ([]domain.CategoryFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var filters []domain.CategoryFilter
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, def, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid category entry %q", entry)
		}
		placeType, keyword, _ := strings.Cut(def, ":")
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			keyword = strings.ReplaceAll(name, "_", " ")
		}
		filters = append(filters, domain.CategoryFilter{
			Name:    name,
			Type:    strings.TrimSpace(placeType),
			Keyword: keyword,
		})
	}
	return filters, nil
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

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
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
