package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	SheetSync     SheetSyncConfig     `mapstructure:"sheet_sync"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration"`
	BCryptCost           int           `mapstructure:"bcrypt_cost"`
}

// PolicyConfig carries the operator-level network allowlist, the third
// tier consulted by the policy evaluator next to per-employee and
// company-wide settings.
type PolicyConfig struct {
	AllowedIPs string `mapstructure:"allowed_ips"`
}

type SheetSyncConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	APIKey         string        `mapstructure:"api_key"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AllowedNetworks splits the operator allowlist into individual entries.
func (c *PolicyConfig) AllowedNetworks() []string {
	if strings.TrimSpace(c.AllowedIPs) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedIPs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ----------------- ENV LOADER -----------------

// LoadConfigFromEnv builds a Config purely from environment variables,
// used for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", ""),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			AccessTokenSecret:    getEnv("ACCESS_TOKEN_SECRET", ""),
			RefreshTokenSecret:   getEnv("REFRESH_TOKEN_SECRET", ""),
			AccessTokenDuration:  getEnvAsDuration("ACCESS_TOKEN_DURATION", 15*time.Minute),
			RefreshTokenDuration: getEnvAsDuration("REFRESH_TOKEN_DURATION", 7*24*time.Hour),
			BCryptCost:           getEnvAsInt("BCRYPT_COST", 10),
		},
		Policy: PolicyConfig{
			AllowedIPs: getEnv("COMPANY_ALLOWED_IPS", ""),
		},
		SheetSync: SheetSyncConfig{
			APIURL:         getEnv("SHEET_SYNC_API_URL", ""),
			APIKey:         getEnv("SHEET_SYNC_API_KEY", ""),
			SyncInterval:   getEnvAsDuration("SHEET_SYNC_INTERVAL", 5*time.Minute),
			RequestTimeout: getEnvAsDuration("SHEET_SYNC_REQUEST_TIMEOUT", 15*time.Second),
			BatchSize:      getEnvAsInt("SHEET_SYNC_BATCH_SIZE", 200),
			MaxWorkers:     getEnvAsInt("SHEET_SYNC_MAX_WORKERS", 4),
			JobQueueSize:   getEnvAsInt("SHEET_SYNC_JOB_QUEUE_SIZE", 100),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access token secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh token secret must be at least 32 characters")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt cost must be between 10 and 15")
	}
	return nil
}
