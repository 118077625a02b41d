package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by STORE_DRIVER and JOB_STORE.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Store     StoreConfig
	Postgres  PostgresConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Nats      NatsConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Mail      MailConfig
	Templates TemplateConfig
	Artifacts ArtifactConfig
	Worker    WorkerConfig
	Tickets   TicketConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                    string
	Env                     string
	Host                    string
	Port                    string
	Version                 string
	PublicBaseURL           string
	RequestTimeoutSeconds   int
	IssueRateLimitPerMinute int
}

// StoreConfig selects the ticket and job backends.
type StoreConfig struct {
	TicketDriver string
	JobDriver    string
	JobTTLHours  int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// MongoConfig holds document store connection values.
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// NatsConfig enables forwarding of domain events to NATS.
type NatsConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	StaffUsername         string
	StaffPasswordHash     string
}

// MailConfig holds the default SMTP account used when a request carries none.
type MailConfig struct {
	SMTPServer     string
	SMTPPort       int
	User           string
	Password       string
	SenderName     string
	TimeoutSeconds int
}

// TemplateConfig locates local templates and bounds remote fetches.
type TemplateConfig struct {
	Dir                 string
	CatalogFile         string
	FetchTimeoutSeconds int
}

// ArtifactConfig locates generated ticket images.
type ArtifactConfig struct {
	Dir string
}

// WorkerConfig tunes the background job consumer.
type WorkerConfig struct {
	ThrottleMinSeconds int
	ThrottleMaxSeconds int
	JobTimeoutSeconds  int
}

// TicketConfig tunes ticket number generation.
type TicketConfig struct {
	NumberMaxAttempts int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                    getEnv("APP_NAME", "qr-ticket-service"),
			Env:                     getEnv("APP_ENV", "development"),
			Host:                    getEnv("APP_HOST", "0.0.0.0"),
			Port:                    getEnv("APP_PORT", "5000"),
			Version:                 getEnv("APP_VERSION", "dev"),
			PublicBaseURL:           strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
			RequestTimeoutSeconds:   getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			IssueRateLimitPerMinute: getEnvAsInt("ISSUE_RATE_LIMIT_PER_MINUTE", 60),
		},
		Store: StoreConfig{
			TicketDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
			JobDriver:    strings.ToLower(getEnv("JOB_STORE", DriverRedis)),
			JobTTLHours:  getEnvAsInt("JOB_TTL_HOURS", 72),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: getEnv("MONGODB_DATABASE", "tickets"),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Nats: NatsConfig{
			URL:           os.Getenv("NATS_URL"),
			Token:         os.Getenv("NATS_TOKEN"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "tickets"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 720),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			StaffUsername:         getEnv("STAFF_USERNAME", "staff"),
			StaffPasswordHash:     os.Getenv("STAFF_PASSWORD_HASH"),
		},
		Mail: MailConfig{
			SMTPServer:     getEnv("SMTP_SERVER", "smtp.gmail.com"),
			SMTPPort:       smtpPort,
			User:           os.Getenv("EMAIL_USER"),
			Password:       os.Getenv("EMAIL_PASSWORD"),
			SenderName:     getEnv("MAIL_SENDER_NAME", "Admin"),
			TimeoutSeconds: getEnvAsInt("MAIL_TIMEOUT_SECONDS", 60),
		},
		Templates: TemplateConfig{
			Dir:                 getEnv("TEMPLATE_DIR", "templates"),
			CatalogFile:         os.Getenv("TEMPLATES_FILE"),
			FetchTimeoutSeconds: getEnvAsInt("TEMPLATE_FETCH_TIMEOUT_SECONDS", 20),
		},
		Artifacts: ArtifactConfig{
			Dir: getEnv("ARTIFACT_DIR", "Qr_Generated"),
		},
		Worker: WorkerConfig{
			ThrottleMinSeconds: getEnvAsInt("WORKER_THROTTLE_MIN_SECONDS", 30),
			ThrottleMaxSeconds: getEnvAsInt("WORKER_THROTTLE_MAX_SECONDS", 45),
			JobTimeoutSeconds:  getEnvAsInt("WORKER_JOB_TIMEOUT_SECONDS", 300),
		},
		Tickets: TicketConfig{
			NumberMaxAttempts: getEnvAsInt("TICKET_NUMBER_MAX_ATTEMPTS", 100),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.TicketDriver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.Store.TicketDriver)
	}
	switch c.Store.JobDriver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("invalid JOB_STORE %q", c.Store.JobDriver)
	}
	if c.Worker.ThrottleMinSeconds < 0 || c.Worker.ThrottleMaxSeconds < c.Worker.ThrottleMinSeconds {
		return fmt.Errorf("invalid worker throttle range %d..%d", c.Worker.ThrottleMinSeconds, c.Worker.ThrottleMaxSeconds)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// JobTTL returns how long finished job records are retained.
func (s StoreConfig) JobTTL() time.Duration {
	if s.JobTTLHours <= 0 {
		return 0
	}
	return time.Duration(s.JobTTLHours) * time.Hour
}

// Timeout bounds a single SMTP dial-and-send.
func (m MailConfig) Timeout() time.Duration {
	return seconds(m.TimeoutSeconds)
}

// FetchTimeout bounds a single template download.
func (t TemplateConfig) FetchTimeout() time.Duration {
	return seconds(t.FetchTimeoutSeconds)
}

// ThrottleRange returns the randomized pause bounds applied after a sent email.
func (w WorkerConfig) ThrottleRange() (time.Duration, time.Duration) {
	return seconds(w.ThrottleMinSeconds), seconds(w.ThrottleMaxSeconds)
}

// JobTimeout bounds the processing of one job.
func (w WorkerConfig) JobTimeout() time.Duration {
	return seconds(w.JobTimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
