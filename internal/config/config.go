package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	App      AppConfig
	Storage  StorageConfig
	Notify   NotifyConfig
}

type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
}

type DatabaseConfig struct {
	URL            string `env:"DATABASE_URL"`
	MaxConns       int    `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns       int    `env:"DB_MIN_CONNS" envDefault:"5"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"migrations"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET"`
	AdminKey      string        `env:"ADMIN_KEY"`
	CookieSecret  string        `env:"COOKIE_SECRET"`
	OwnerTokenTTL time.Duration `env:"OWNER_TOKEN_TTL" envDefault:"24h"`
}

type AppConfig struct {
	PublicURL   string `env:"APP_URL" envDefault:"http://localhost:8080"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

type StorageConfig struct {
	BaseURL    string `env:"STORAGE_URL"`
	ServiceKey string `env:"STORAGE_SERVICE_KEY"`
	Bucket     string `env:"STORAGE_BUCKET" envDefault:"menus"`
}

type NotifyConfig struct {
	FromAddress string `env:"NOTIFY_FROM" envDefault:"no-reply@tablecode.app"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Production() bool {
	return c.App.Environment == "production"
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Auth.AdminKey == "" {
		missing = append(missing, "ADMIN_KEY")
	}
	if c.Auth.CookieSecret == "" {
		missing = append(missing, "COOKIE_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}
