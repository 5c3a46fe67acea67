package config

import (
	"fmt"
	"os"
	"strings"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type Config struct {
	AppName     string
	HTTPPort    string // :8080
	StoreKind   string // postgres | memory
	CORSOrigins []string
	DB          DB
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseOrigins(s string) []string {
	if s == "" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func FromEnv() Config {
	return Config{
		AppName:     getenv("APP_NAME", "postbox"),
		HTTPPort:    getenv("HTTP_PORT", ":8080"),
		StoreKind:   getenv("STORE", "postgres"),
		CORSOrigins: parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "postbox"),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
