package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string   `yml:"env" default:"local"`
	Postgres Postgres `yml:"postgres"`
	Server   Server   `yml:"server" env-required:"true"`
	GitHub   GitHub   `yml:"github"`
}

type Postgres struct {
	Username        string        `env:"POSTGRES_USER" env-required:"true"`
	Password        string        `env:"POSTGRES_PASSWORD" env-required:"true"`
	Host            string        `yml:"host" env-required:"true"`
	Port            string        `env:"POSTGRES_PORT" env-required:"true"`
	Database        string        `env:"POSTGRES_DB" env-required:"true"`
	MaxOpenConns    int           `yml:"max_open_conns" default:"50"`
	MaxIdleConns    int           `yml:"max_idle_conns" default:"10"`
	ConnMaxLifetime time.Duration `yml:"conn_max_lifetime" default:"5m"`
	ConnMaxIdleTime time.Duration `yml:"conn_max_idle_time" default:"1m"`
}

type Server struct {
	Host         string        `yml:"host" default:"localhost"`
	Port         string        `yml:"port" default:"8080"`
	ReadTimeout  time.Duration `yml:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `yml:"write_timeout" default:"30s"`
	IdleTimeout  time.Duration `yml:"idle_timeout" default:"60s"`
}

// GitHub holds the credentials for the GitHub REST API and webhook receiver.
// ServiceToken is the shared fallback credential used when an integration
// has no stored per-user token.
type GitHub struct {
	ClientID       string        `env:"GITHUB_CLIENT_ID"`
	ClientSecret   string        `env:"GITHUB_CLIENT_SECRET"`
	ServiceToken   string        `env:"GITHUB_SERVICE_TOKEN"`
	WebhookSecret  string        `env:"GITHUB_WEBHOOK_SECRET"`
	SyncWindow     time.Duration `yml:"sync_window" default:"2160h"`
	PageSize       int           `yml:"page_size" default:"100"`
	RequestsPerSec float64       `yml:"requests_per_sec" default:"10"`
	CallTimeout    time.Duration `yml:"call_timeout" default:"30s"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		return nil, errors.New("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("config file does not exist: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	return &cfg, nil
}
