package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"dailyflow/internal/scheduler"
)

const EnvPrefix = "DAILYFLOW_"

type Config struct {
	HTTP          HTTPConfig          `koanf:"http"`
	Database      DatabaseConfig      `koanf:"database"`
	Auth          AuthConfig          `koanf:"auth"`
	Log           LogConfig           `koanf:"log"`
	Reminders     RemindersConfig     `koanf:"reminders"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Mail          MailConfig          `koanf:"mail"`
	Webhook       WebhookConfig       `koanf:"webhook"`
}

type HTTPConfig struct {
	Addr  string `koanf:"addr"`
	Debug bool   `koanf:"debug"` // mounts /debug/pprof
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type LogConfig struct {
	Level   string `koanf:"level"`
	Console bool   `koanf:"console"`
}

type RemindersConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Workers       int           `koanf:"workers"`
	QueueSize     int           `koanf:"queue_size"`
	RatePerSec    float64       `koanf:"rate_per_sec"` // 0 disables the limiter
	Resync        string        `koanf:"resync"`
	Expire        string        `koanf:"expire"`
	SessionIdle   time.Duration `koanf:"session_idle"`
	RefetchOnFire bool          `koanf:"refetch_on_fire"`
}

type NotificationsConfig struct {
	DismissAfter time.Duration `koanf:"dismiss_after"`
	Icon         string        `koanf:"icon"`
}

type MailConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Secure   bool   `koanf:"secure"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	FromName string `koanf:"from_name"`
	AppURL   string `koanf:"app_url"`
	Timezone string `koanf:"timezone"`
}

type WebhookConfig struct {
	URL     string            `koanf:"url"`
	Timeout time.Duration     `koanf:"timeout"`
	Headers map[string]string `koanf:"headers"`
}

// legacyEnv maps the variable names used by existing deployments onto keys.
var legacyEnv = map[string]string{
	"EMAIL_HOST":          "mail.host",
	"EMAIL_PORT":          "mail.port",
	"EMAIL_SECURE":        "mail.secure",
	"EMAIL_USER":          "mail.user",
	"EMAIL_PASSWORD":      "mail.password",
	"JWT_SECRET":          "auth.jwt_secret",
	"NEXT_PUBLIC_APP_URL": "mail.app_url",
}

// Load merges defaults, the optional YAML file at configPath and the
// environment, in that order.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file: %w", err)
		}
	}

	for name, key := range legacyEnv {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			_ = k.Set(key, v)
		}
	}

	// DAILYFLOW_MAIL__APP_URL -> mail.app_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required (set JWT_SECRET or auth.jwt_secret)")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Reminders.Workers <= 0 {
		return fmt.Errorf("reminders.workers must be positive")
	}
	if c.Reminders.QueueSize <= 0 {
		return fmt.Errorf("reminders.queue_size must be positive")
	}
	if c.Reminders.RatePerSec < 0 {
		return fmt.Errorf("reminders.rate_per_sec must not be negative")
	}
	if err := scheduler.ValidateCronExpression(c.Reminders.Resync); err != nil {
		return fmt.Errorf("reminders.resync: %w", err)
	}
	if err := scheduler.ValidateCronExpression(c.Reminders.Expire); err != nil {
		return fmt.Errorf("reminders.expire: %w", err)
	}
	if c.Mail.Port <= 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("mail.port out of range: %d", c.Mail.Port)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("mail.timezone: %w", err)
	}
	return nil
}

// Location resolves the timezone used to render reminder times.
func (c *Config) Location() (*time.Location, error) {
	if c.Mail.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Mail.Timezone)
}
