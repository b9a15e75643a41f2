package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"

	// minImageBytes keeps the image ceiling above what a tiny JPEG data URI needs.
	minImageBytes = 4 << 10
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel        string // "debug" | "info" | "warn" | "error"
	PrettyLog       bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile         string // optional rotated log file (lumberjack)
	LogMaxSizeMB    int
	LogMaxBackups   int
	LogMaxAgeDays   int
	StoreBackend    string // "redis" | "memory"
	MemoryQuota     int64  // byte budget of the memory backend (0 = unlimited)
	LegacyDB        string // path to the legacy sqlite store (empty = no Gen 0 migration)
	SeedFile        string // yaml file with default items (empty = built-in defaults)
	AdminToken      string // token accepted by ?admin= (empty => generated at startup)
	SessionSecret   string // HMAC key for the admin session cookie (empty => random per process)
	SessionTTL      time.Duration
	SecureCookie    bool          // mark the session cookie Secure (HTTPS deployments)
	ImageMaxBytes   int           // ceiling for a normalized image data URI
	ImageMaxDim     int           // longest edge of a normalized image
	ImageMaxPixels  int           // largest width*height accepted for decoding
	UploadLimit     int64         // max request body for image uploads
	QuotaWarnRatio  float64       // usage/quota above which storage is critical
	QuotaSampleTTL  time.Duration // how long a usage sample is reused
	SweepSchedule   string        // cron spec for the consistency sweep
	WriteRetries    int           // attempts for a transient persistence failure
	WriteRetryDelay time.Duration // initial backoff between attempts
	WriteBurst      int           // rate limit burst for admin writes
	WriteRefillRate int           // rate limit refill per minute for admin writes

	// Redis
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict infra endpoints to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SHOWCASE_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SHOWCASE_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:      getenv("SHOWCASE_LOG_LEVEL", "info"),
		PrettyLog:     mustBool("SHOWCASE_PRETTY_LOG", true),
		LogFile:       getenv("SHOWCASE_LOG_FILE", ""),
		LogMaxSizeMB:  getenvInt("SHOWCASE_LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getenvInt("SHOWCASE_LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays: getenvInt("SHOWCASE_LOG_MAX_AGE_DAYS", 28),

		// Storage
		StoreBackend: strings.ToLower(getenv("SHOWCASE_STORE_BACKEND", BackendRedis)),
		MemoryQuota:  getenvInt64("SHOWCASE_MEMORY_QUOTA_BYTES", 5<<20),
		LegacyDB:     getenv("SHOWCASE_LEGACY_DB", ""),
		SeedFile:     getenv("SHOWCASE_SEED_FILE", ""),

		// Admin mode
		AdminToken:    getenv("SHOWCASE_ADMIN_TOKEN", ""),
		SessionSecret: getenv("SHOWCASE_SESSION_SECRET", ""),
		SessionTTL:    mustDuration("SHOWCASE_SESSION_TTL", 30*24*time.Hour),
		SecureCookie:  mustBool("SHOWCASE_SECURE_COOKIE", false),

		// Images
		ImageMaxBytes:  getenvInt("SHOWCASE_IMAGE_MAX_BYTES", 512<<10),
		ImageMaxDim:    getenvInt("SHOWCASE_IMAGE_MAX_DIMENSION", 1200),
		ImageMaxPixels: getenvInt("SHOWCASE_IMAGE_MAX_PIXELS", 24_000_000),
		UploadLimit:   getenvInt64("SHOWCASE_UPLOAD_LIMIT_BYTES", 20<<20),

		// Quota and background work
		QuotaWarnRatio:  mustFloat("SHOWCASE_QUOTA_WARN_RATIO", 0.9),
		QuotaSampleTTL:  mustDuration("SHOWCASE_QUOTA_SAMPLE_TTL", 30*time.Second),
		SweepSchedule:   getenv("SHOWCASE_SWEEP_SCHEDULE", "@every 1h"),
		WriteRetries:    getenvInt("SHOWCASE_WRITE_RETRIES", 3),
		WriteRetryDelay: mustDuration("SHOWCASE_WRITE_RETRY_DELAY", 100*time.Millisecond),
		WriteBurst:      getenvInt("SHOWCASE_WRITE_BURST", 120),
		WriteRefillRate: getenvInt("SHOWCASE_WRITE_REFILL_PER_MIN", 600),

		// Redis settings
		RedisAddr:           getenv("SHOWCASE_REDIS_ADDR", ""),
		RedisUser:           getenv("SHOWCASE_REDIS_USERNAME", ""),
		RedisPassword:       getenv("SHOWCASE_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("SHOWCASE_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("SHOWCASE_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseAllowedIPs(getenv("SHOWCASE_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("SHOWCASE_TRUST_PROXY", true),
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.AdminToken = "***REDACTED***"
		cfgCopy.SessionSecret = "***REDACTED***"
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// Validate checks cross-field constraints that single env helpers cannot.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("SHOWCASE_REDIS_ADDR is required when SHOWCASE_STORE_BACKEND=%s", BackendRedis)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown SHOWCASE_STORE_BACKEND %q", c.StoreBackend)
	}
	if c.ImageMaxBytes < minImageBytes {
		return fmt.Errorf("SHOWCASE_IMAGE_MAX_BYTES must be >= %d, got %d", minImageBytes, c.ImageMaxBytes)
	}
	if c.ImageMaxDim < 16 {
		return fmt.Errorf("SHOWCASE_IMAGE_MAX_DIMENSION must be >= 16, got %d", c.ImageMaxDim)
	}
	if c.ImageMaxPixels < c.ImageMaxDim*c.ImageMaxDim {
		return fmt.Errorf("SHOWCASE_IMAGE_MAX_PIXELS must be >= %d, got %d", c.ImageMaxDim*c.ImageMaxDim, c.ImageMaxPixels)
	}
	if c.QuotaWarnRatio <= 0 || c.QuotaWarnRatio > 1 {
		return fmt.Errorf("SHOWCASE_QUOTA_WARN_RATIO must be in (0, 1], got %v", c.QuotaWarnRatio)
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("invalid SHOWCASE_SWEEP_SCHEDULE %q: %w", c.SweepSchedule, err)
	}
	if c.QuotaSampleTTL <= 0 {
		return fmt.Errorf("SHOWCASE_QUOTA_SAMPLE_TTL must be > 0, got %v", c.QuotaSampleTTL)
	}
	if c.WriteRetries < 1 {
		return fmt.Errorf("SHOWCASE_WRITE_RETRIES must be >= 1, got %d", c.WriteRetries)
	}
	return nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
