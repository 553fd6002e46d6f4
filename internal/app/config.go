package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	UserAgent string

	CatalogName       string
	CatalogTimeout    time.Duration
	StockgateEndpoint string
	StockgateAPIKey   string
	PexelsEndpoint    string
	PexelsAPIKey      string

	OpenAIAPIKey   string
	OpenAIBaseURL  string
	PlannerModel   string
	VisionModel    string
	PlannerTimeout time.Duration
	VisionTimeout  time.Duration

	RedisURL      string
	MongoURI      string
	MongoDatabase string

	CacheTTL      time.Duration
	CacheDisabled bool

	TargetCandidates  int
	PrefilterPool     int
	Shortlist         int
	FastTrackVisual   float64
	FastTrackCombined float64

	SearchConcurrency   int
	MetadataConcurrency int
	VisionConcurrency   int

	MinAcquireScore float64
	EmergencyFloor  float64
	WaitForDeferred bool
	WaitTimeout     time.Duration
	PollInterval    time.Duration
	RotationWindow  int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8085"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent: getEnv("DISCOVERY_USER_AGENT", "newsreel-discovery/1.0"),

		CatalogName:       strings.ToLower(getEnv("CATALOG_PROVIDER", "stockgate")),
		CatalogTimeout:    time.Duration(getEnvInt("CATALOG_TIMEOUT_SECONDS", 15)) * time.Second,
		StockgateEndpoint: normalizeEndpoint(getEnv("STOCKGATE_ENDPOINT", "http://stockgate:8120")),
		StockgateAPIKey:   strings.TrimSpace(os.Getenv("STOCKGATE_API_KEY")),
		PexelsEndpoint:    normalizeEndpoint(getEnv("PEXELS_ENDPOINT", "https://api.pexels.com/videos")),
		PexelsAPIKey:      strings.TrimSpace(os.Getenv("PEXELS_API_KEY")),

		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		PlannerModel:   getEnv("PLANNER_MODEL", "gpt-4o-mini"),
		VisionModel:    getEnv("VISION_MODEL", "gpt-4o-mini"),
		PlannerTimeout: time.Duration(getEnvInt("PLANNER_TIMEOUT_SECONDS", 20)) * time.Second,
		VisionTimeout:  time.Duration(getEnvInt("VISION_TIMEOUT_SECONDS", 30)) * time.Second,

		RedisURL:      getEnv("REDIS_URL", ""),
		MongoURI:      getEnv("MONGO_URI", "mongodb://mongodb:27017"),
		MongoDatabase: getEnv("MONGO_DB", "discovery"),

		CacheTTL:      time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 30)) * time.Minute,
		CacheDisabled: getEnvBool("SEARCH_CACHE_DISABLED", false),

		TargetCandidates:  getEnvInt("DISCOVERY_TARGET_CANDIDATES", 12),
		PrefilterPool:     getEnvInt("DISCOVERY_PREFILTER_POOL", 12),
		Shortlist:         getEnvInt("DISCOVERY_SHORTLIST", 5),
		FastTrackVisual:   float64(getEnvInt("DISCOVERY_FASTTRACK_VISUAL", 75)),
		FastTrackCombined: float64(getEnvInt("DISCOVERY_FASTTRACK_COMBINED", 70)),

		SearchConcurrency:   getEnvInt("SEARCH_CONCURRENCY", 5),
		MetadataConcurrency: getEnvInt("METADATA_CONCURRENCY", 5),
		VisionConcurrency:   getEnvInt("VISION_CONCURRENCY", 2),

		MinAcquireScore: float64(getEnvInt("ACQUIRE_MIN_SCORE", 15)),
		EmergencyFloor:  float64(getEnvInt("ACQUIRE_EMERGENCY_FLOOR", 10)),
		WaitForDeferred: getEnvBool("ACQUIRE_WAIT_ENABLED", false),
		WaitTimeout:     time.Duration(getEnvInt("ACQUIRE_WAIT_TIMEOUT_MINUTES", 4)) * time.Minute,
		PollInterval:    time.Duration(getEnvInt("ACQUIRE_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		RotationWindow:  getEnvInt("ROTATION_WINDOW", 6),
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

func normalizeEndpoint(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		value = "https://" + value
	}
	return strings.TrimSuffix(value, "/")
}
