package config

import (
	"github.com/knadh/koanf/providers/confmap"
)

func DefaultConfig() map[string]interface{} {
	return map[string]interface{}{
		"http": map[string]interface{}{
			"addr":  ":8080",
			"debug": false,
		},
		"database": map[string]interface{}{
			"path": "dailyflow.db",
		},
		"auth": map[string]interface{}{
			"jwt_secret": "",
			"token_ttl":  "168h",
		},
		"log": map[string]interface{}{
			"level":   "info",
			"console": true,
		},
		"reminders": map[string]interface{}{
			"enabled":         true,
			"workers":         4,
			"queue_size":      256,
			"rate_per_sec":    5.0,
			"resync":          "@every 5m",
			"expire":          "@every 1m",
			"session_idle":    "24h",
			"refetch_on_fire": true,
		},
		"notifications": map[string]interface{}{
			"dismiss_after": "10s",
			"icon":          "/favicon.ico",
		},
		"mail": map[string]interface{}{
			"host":      "smtp.gmail.com",
			"port":      587,
			"secure":    false,
			"user":      "",
			"password":  "",
			"from_name": "Daily Flow Reminders",
			"app_url":   "http://localhost:3000",
			"timezone":  "Asia/Dhaka",
		},
		"webhook": map[string]interface{}{
			"url":     "",
			"timeout": "10s",
		},
	}
}

func NewDefaultProvider() *confmap.Confmap {
	return confmap.Provider(DefaultConfig(), ".")
}
