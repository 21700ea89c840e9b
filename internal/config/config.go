package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server     ServerConfig
	App        AppConfig
	Store      StoreConfig
	Cache      CacheConfig
	Queue      QueueConfig
	Ledger     LedgerConfig
	Supervisor SupervisorConfig
	Bot        BotConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"resellhub"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	AdminKeys   string `envconfig:"ADMIN_API_KEYS" default:""` // comma separated
}

// StoreConfig selects and configures the account store backend.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // mongodb, sqlite, postgres or mysql

	// SQLite settings
	Path string `envconfig:"STORE_SQLITE_PATH" default:"./data/resellhub.db"`

	// PostgreSQL / MySQL settings
	Host     string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"STORE_DB_PORT" default:"0"`
	Name     string `envconfig:"STORE_DB_NAME" default:"resellhub"`
	User     string `envconfig:"STORE_DB_USER" default:"resellhub"`
	Password string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode  string `envconfig:"STORE_DB_SSLMODE" default:"disable"`

	// MongoDB settings
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"resellhub"`
}

// CacheConfig holds balance cache settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
}

// QueueConfig holds the inbound event queue settings. The queue shares the
// Redis connection configured in CacheConfig.
type QueueConfig struct {
	Enabled     bool          `envconfig:"QUEUE_ENABLED" default:"false"`
	KeyPrefix   string        `envconfig:"QUEUE_KEY_PREFIX" default:"resellhub:events"`
	PollTimeout time.Duration `envconfig:"QUEUE_POLL_TIMEOUT" default:"5s"`
	MaxAttempts int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"5"`
}

// LedgerConfig holds revenue ledger settings.
type LedgerConfig struct {
	MaturityWindow time.Duration `envconfig:"LEDGER_MATURITY_WINDOW" default:"48h"`
	SweepInterval  time.Duration `envconfig:"LEDGER_SWEEP_INTERVAL" default:"5m"`
	ClaimTTL       time.Duration `envconfig:"LEDGER_SETTLEMENT_CLAIM_TTL" default:"10m"`
}

// SupervisorConfig holds agent process supervisor settings.
type SupervisorConfig struct {
	Enabled           bool          `envconfig:"SUPERVISOR_ENABLED" default:"true"`
	ReconcileInterval time.Duration `envconfig:"SUPERVISOR_RECONCILE_INTERVAL" default:"60s"`
	StopTimeout       time.Duration `envconfig:"SUPERVISOR_STOP_TIMEOUT" default:"10s"`
}

// BotConfig holds chat bot transport settings.
type BotConfig struct {
	APIBaseURL    string        `envconfig:"BOT_API_BASE_URL" default:"https://api.telegram.org"`
	PollTimeout   time.Duration `envconfig:"BOT_POLL_TIMEOUT" default:"50s"`
	CredentialKey string        `envconfig:"AGENT_TOKEN_AES_KEY" default:""` // base64 16/24/32 byte key
}

// RateLimitConfig holds per-client HTTP rate limits.
type RateLimitConfig struct {
	RPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst int     `envconfig:"RATE_LIMIT_BURST" default:"40"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, port, s.Name, s.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (s *StoreConfig) MySQLDSN() string {
	port := s.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&clientFoundRows=true",
		s.User, s.Password, s.Host, port, s.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// AdminAPIKeys returns the configured admin keys with blanks removed.
func (a *AppConfig) AdminAPIKeys() []string {
	var keys []string
	for _, k := range strings.Split(a.AdminKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
