package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pkgstrings "vitalis/pkg/platform/strings"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	AllowedOrigin []string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Log         LogConfig
	Audit       AuditConfig
	Retention   RetentionConfig
	Export      ExportConfig
	RateLimit   RateLimitConfig
}

type RedisConfig struct {
	URL          string
	Channel      string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	Partitions int32
}

type LogConfig struct {
	Level  string
	Format string
}

type AuditConfig struct {
	// BufferSize > 0 makes audit recording asynchronous.
	BufferSize int
}

type RetentionConfig struct {
	// CascadeDelete removes the underlying record when a flag is reviewed as deleted.
	CascadeDelete bool
}

type ExportConfig struct {
	Timeout     time.Duration
	PreviewRows int
	Partial     bool
}

// RateLimitConfig caps per-user requests within Window. Zero disables a cap.
type RateLimitConfig struct {
	Window           time.Duration
	ExportRequests   int
	DeletionRequests int
}

const devSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds the configuration from environment variables so main stays
// lean. A .env file in the working directory is loaded first when present;
// real environment variables win over it.
func FromEnv() Server {
	_ = godotenv.Load()

	return Server{
		Addr:          getString("VITALIS_ADDR", ":8080"),
		JWTSigningKey: getString("JWT_SIGNING_KEY", devSigningKey),
		AllowedOrigin: splitList(getString("CORS_ALLOWED_ORIGINS", "*")),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Channel:      getString("CHANGEFEED_CHANNEL", "vitalis:changes"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getString("AUDIT_TOPIC", "vitalis.audit"),
			Partitions: int32(getInt("AUDIT_TOPIC_PARTITIONS", 3)),
		},
		Log: LogConfig{
			Level:  getString("LOG_LEVEL", "info"),
			Format: getString("LOG_FORMAT", "json"),
		},
		Audit: AuditConfig{
			BufferSize: getInt("AUDIT_BUFFER_SIZE", 1024),
		},
		Retention: RetentionConfig{
			CascadeDelete: getBool("RETENTION_CASCADE_DELETE", true),
		},
		Export: ExportConfig{
			Timeout:     getDuration("EXPORT_TIMEOUT", 30*time.Second),
			PreviewRows: getInt("EXPORT_PREVIEW_ROWS", 50),
			Partial:     getBool("EXPORT_PARTIAL", false),
		},
		RateLimit: RateLimitConfig{
			Window:           getDuration("RATE_LIMIT_WINDOW", time.Hour),
			ExportRequests:   getInt("RATE_LIMIT_EXPORTS", 10),
			DeletionRequests: getInt("RATE_LIMIT_DELETION_REQUESTS", 5),
		},
	}
}

// IsDevSigningKey reports whether the built-in development key is in use.
func (s Server) IsDevSigningKey() bool {
	return s.JWTSigningKey == devSigningKey
}

func getString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return pkgstrings.DedupeAndTrim(strings.Split(raw, ","))
}
