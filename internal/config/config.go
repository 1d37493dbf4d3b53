package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NATS       NATSConfig
	NewRelic   NewRelicConfig
	Metrics    MetricsConfig
	Simulation SimulationConfig
	Store      StoreConfig
	Seed       SeedConfig
	LogLevel   string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `validate:"required,numeric"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string `validate:"required"`
	Port     string `validate:"required,numeric"`
	User     string `validate:"required"`
	Password string
	DBName   string `validate:"required"`
	SSLMode  string `validate:"oneof=disable require verify-ca verify-full"`
	Migrate  bool
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `validate:"required,hostname_port"`
	Password string
	DB       int `validate:"gte=0"`
}

// NATSConfig holds telemetry publisher configuration. An empty URL disables NATS.
type NATSConfig struct {
	URL           string `validate:"omitempty,url"`
	SubjectPrefix string `validate:"required"`
	PushSubject   string
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string `validate:"required_if=Enabled true"`
	Enabled    bool
}

// MetricsConfig holds the Prometheus listener. An empty Addr serves /metrics on the API port only.
type MetricsConfig struct {
	Addr string `validate:"omitempty,hostname_port"`
}

// SimulationConfig holds the motion and boarding timings.
type SimulationConfig struct {
	Steps        int           `validate:"gte=1"`
	StepDelay    time.Duration `validate:"gte=0"`
	BoardingPoll time.Duration `validate:"gt=0"`
	LockTTL      time.Duration `validate:"gt=0"`
}

// StoreConfig selects the document backend.
type StoreConfig struct {
	Driver string `validate:"oneof=postgres memory"`
}

// SeedConfig points at an optional YAML fixture applied at boot.
type SeedConfig struct {
	File string `validate:"omitempty,file"`
}

// Load loads configuration from environment variables, reading a .env file
// first when one exists, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "schoolbus"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Migrate:  getBoolEnv("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "schoolbus.vehicles"),
			PushSubject:   getEnv("NATS_PUSH_SUBJECT", "schoolbus.push"),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "schoolbus-service"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		Simulation: SimulationConfig{
			Steps:        getIntEnv("SIM_STEPS", 100),
			StepDelay:    getDurationEnv("SIM_STEP_DELAY", 50*time.Millisecond),
			BoardingPoll: getDurationEnv("SIM_BOARDING_POLL", 100*time.Millisecond),
			LockTTL:      getDurationEnv("SIM_LOCK_TTL", 30*time.Minute),
		},
		Store: StoreConfig{
			Driver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		},
		Seed: SeedConfig{
			File: getEnv("SEED_FILE", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section. Database and Redis are
// only checked when the postgres driver is selected.
func (c *Config) Validate() error {
	v := validator.New()
	sections := []any{c.Server, c.NATS, c.NewRelic, c.Metrics, c.Simulation, c.Store, c.Seed}
	if c.Store.Driver == StoreDriverPostgres {
		sections = append(sections, c.Database, c.Redis)
	}
	for _, s := range sections {
		if err := v.Struct(s); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	if err := v.Var(c.LogLevel, "oneof=debug info warn error"); err != nil {
		return fmt.Errorf("invalid config: LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
