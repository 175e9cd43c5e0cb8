package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Tenant   TenantConfig   `mapstructure:"tenant"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// RateLimits overrides requests per minute by limit name.
	RateLimits map[string]int `mapstructure:"rate_limits"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AppConfig struct {
	FrontendURL string `mapstructure:"frontend_url"`
}

type DatabaseConfig struct {
	// postgres://... selects the pgx driver; anything else is opened with sqlite3.
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type CacheConfig struct {
	Driver  string        `mapstructure:"driver"` // memory, redis
	TeamTTL time.Duration `mapstructure:"team_ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type TenantConfig struct {
	RootDomain         string   `mapstructure:"root_domain"`
	ReservedSubdomains []string `mapstructure:"reserved_subdomains"`
}

type GitHubConfig struct {
	AppName        string        `mapstructure:"app_name"`
	AppID          int64         `mapstructure:"app_id"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PrivateKeyPEM  string        `mapstructure:"private_key_pem"`
	StateSecret    string        `mapstructure:"state_secret"`
	StateWindow    time.Duration `mapstructure:"state_window"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
}

// AppConfigured reports whether enough is set to call the GitHub API as the app.
func (c GitHubConfig) AppConfigured() bool {
	return c.AppID != 0 && (c.PrivateKeyPath != "" || c.PrivateKeyPEM != "")
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("app.frontend_url", "http://localhost:3000")

	v.SetDefault("database.url", "file:./data/openfeedback.db")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.team_ttl", 300*time.Second)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 10)
	v.SetDefault("cache.redis.dial_timeout", 5*time.Second)
	v.SetDefault("cache.redis.read_timeout", 3*time.Second)
	v.SetDefault("cache.redis.write_timeout", 3*time.Second)

	v.SetDefault("tenant.root_domain", "openfeedback.tech")
	v.SetDefault("tenant.reserved_subdomains", []string{"www", "app", "api"})

	// Keys without a real default are still registered so env overrides reach Unmarshal.
	v.SetDefault("github.app_name", "")
	v.SetDefault("github.app_id", 0)
	v.SetDefault("github.private_key_path", "")
	v.SetDefault("github.private_key_pem", "")
	v.SetDefault("github.state_secret", "")
	v.SetDefault("github.webhook_secret", "")
	v.SetDefault("github.state_window", 15*time.Minute)
	v.SetDefault("github.api_base_url", "https://api.github.com/")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_ttl", time.Hour)

	v.SetDefault("cors.allowed_origins", []string{"https://*.openfeedback.tech"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Authorization", "Content-Type"})
	v.SetDefault("cors.max_age", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads the YAML file at path (optional when empty) and applies
// environment overrides such as GITHUB_STATE_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		errs = append(errs, fmt.Errorf("cache.driver must be memory or redis, got %q", c.Cache.Driver))
	}
	if c.Cache.TeamTTL <= 0 {
		errs = append(errs, errors.New("cache.team_ttl must be positive"))
	}
	if c.GitHub.StateSecret == "" {
		errs = append(errs, errors.New("github.state_secret is required"))
	}
	if c.GitHub.StateWindow <= 0 {
		errs = append(errs, errors.New("github.state_window must be positive"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}

	return errors.Join(errs...)
}
