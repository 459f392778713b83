package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Classifier ClassifierConfig
	Mail       MailConfig
	Scheduler  SchedulerConfig
	Kafka      KafkaConfig
	Secrets    SecretsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the ticket store backend.
type StoreConfig struct {
	Driver string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path          string
	RunMigrations bool
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr              string
	Password          string
	DB                int
	IngestLockTTLSecs int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
}

// AuthConfig defines operator authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
	BootstrapAdminEmail   string
	BootstrapAdminPass    string
}

// ClassifierConfig points at the classification backend.
type ClassifierConfig struct {
	OpenAIAPIKey   string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	ProfilePath    string
}

// MailConfig tunes mailbox and relay I/O. Credentials live in the database.
type MailConfig struct {
	Mailbox            string
	IMAPTimeoutSeconds int
	SMTPTimeoutSeconds int
	SendRatePerSecond  float64
}

// SchedulerConfig seeds the auto-fetch record and bounds each run.
type SchedulerConfig struct {
	DefaultEnabled         bool
	DefaultIntervalMinutes int
	RunTimeoutSeconds      int
}

// KafkaConfig enables the lifecycle event relay when brokers are set.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SecretsConfig holds the age identity used to seal stored mail credentials.
type SecretsConfig struct {
	AgeIdentity string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	sendRate, err := strconv.ParseFloat(getEnv("MAIL_SEND_RATE_PER_SECOND", "2"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid MAIL_SEND_RATE_PER_SECOND: %w", err)
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	switch driver {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", driver)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver: driver,
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path:          getEnv("SQLITE_PATH", "data/support-desk.db"),
			RunMigrations: getEnvAsBool("SQLITE_RUN_MIGRATIONS", true),
		},
		Redis: RedisConfig{
			Addr:              os.Getenv("REDIS_ADDR"),
			Password:          os.Getenv("REDIS_PASSWORD"),
			DB:                redisDB,
			IngestLockTTLSecs: getEnvAsInt("REDIS_INGEST_LOCK_TTL_SECONDS", 900),
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Service: getEnv("APP_NAME", "support-desk"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminEmail:   os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPass:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Classifier: ClassifierConfig{
			OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
			BaseURL:        os.Getenv("CLASSIFIER_BASE_URL"),
			Model:          os.Getenv("CLASSIFIER_MODEL"),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 60),
			ProfilePath:    os.Getenv("CLASSIFIER_PROFILE_PATH"),
		},
		Mail: MailConfig{
			Mailbox:            getEnv("MAIL_MAILBOX", "INBOX"),
			IMAPTimeoutSeconds: getEnvAsInt("MAIL_IMAP_TIMEOUT_SECONDS", 30),
			SMTPTimeoutSeconds: getEnvAsInt("MAIL_SMTP_TIMEOUT_SECONDS", 30),
			SendRatePerSecond:  sendRate,
		},
		Scheduler: SchedulerConfig{
			DefaultEnabled:         getEnvAsBool("SCHEDULER_DEFAULT_ENABLED", false),
			DefaultIntervalMinutes: getEnvAsInt("SCHEDULER_DEFAULT_INTERVAL_MINUTES", 5),
			RunTimeoutSeconds:      getEnvAsInt("SCHEDULER_RUN_TIMEOUT_SECONDS", 600),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "support-desk.ticket-events"),
		},
		Secrets: SecretsConfig{
			AgeIdentity: os.Getenv("SECRETS_AGE_IDENTITY"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	return seconds(a.RequestTimeoutSeconds)
}

// IngestLockTTL bounds how long a crashed run can hold the ingestion lock.
func (r RedisConfig) IngestLockTTL() time.Duration {
	return seconds(r.IngestLockTTLSecs)
}

// Timeout bounds a single classification request.
func (c ClassifierConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// IMAPTimeout bounds mailbox dial and commands.
func (m MailConfig) IMAPTimeout() time.Duration {
	return seconds(m.IMAPTimeoutSeconds)
}

// SMTPTimeout bounds a single send.
func (m MailConfig) SMTPTimeout() time.Duration {
	return seconds(m.SMTPTimeoutSeconds)
}

// RunTimeout bounds one scheduled ingestion run.
func (s SchedulerConfig) RunTimeout() time.Duration {
	return seconds(s.RunTimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
