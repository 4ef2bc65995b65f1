package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// token issuing
	JWTSecret           string
	JWTIssuer           string
	JWTAudience         string
	JWTAccessTTLMinutes int

	// lockout policy
	LockoutThreshold     int
	LockoutWindowMinutes int

	// whether an unconfirmed email blocks login (policy, not hard-wired)
	RequireConfirmedEmail bool

	// links embedded in confirmation / reset emails
	PublicBaseURL string

	MailgunDomain string
	MailgunAPIKey string
	MailgunSender string

	AllowedOrigins []string

	OTLPEndpoint string

	// dev seed account
	SeedOwnerEmail    string
	SeedOwnerPassword string
	SeedOwnerName     string
}

func Load() Config {
	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		JWTIssuer:           getEnv("JWT_ISSUER", "casahub"),
		JWTAudience:         getEnv("JWT_AUDIENCE", "casahub-api"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 60),

		LockoutThreshold:     getEnvInt("LOCKOUT_THRESHOLD", 5),
		LockoutWindowMinutes: getEnvInt("LOCKOUT_WINDOW_MINUTES", 3),

		RequireConfirmedEmail: getEnvBool("REQUIRE_CONFIRMED_EMAIL", false),

		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		MailgunDomain: getEnv("MAILGUN_DOMAIN", ""),
		MailgunAPIKey: getEnv("MAILGUN_API_KEY", ""),
		MailgunSender: getEnv("MAILGUN_SENDER", "no-reply@casahub.local"),

		AllowedOrigins: splitCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		SeedOwnerEmail:    getEnv("SEED_OWNER_EMAIL", ""),
		SeedOwnerPassword: getEnv("SEED_OWNER_PASSWORD", ""),
		SeedOwnerName:     getEnv("SEED_OWNER_NAME", "Casahub Owner"),
	}
}

// Validate catches the misconfigurations that must stop the process at
// startup rather than surface per-request (e.g. a missing signing secret).
func (c Config) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be set and at least 32 bytes")
	}
	if c.LockoutThreshold <= 0 {
		return errors.New("LOCKOUT_THRESHOLD must be positive")
	}
	if c.JWTAccessTTLMinutes <= 0 {
		return errors.New("JWT_ACCESS_TTL_MINUTES must be positive")
	}
	return nil
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) LockoutWindow() time.Duration {
	return time.Duration(c.LockoutWindowMinutes) * time.Minute
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "casahub")
	pass := getEnv("DB_PASSWORD", "casahub")
	name := getEnv("DB_NAME", "casahub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
