package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ScanModeStream = "stream"
	ScanModeAsync  = "async"
)

// App holds the process settings read from the environment. Integration
// keys may be empty; the handlers that need them answer with a configuration
// error instead of the server refusing to start.
type App struct {
	Port    string
	SiteURL string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	GeminiAPIKey  string
	GCPProjectID  string
	GCPLocation   string
	AIModel       string
	AITemperature float32
	AITimeout     time.Duration

	GCSBucket    string
	SignedURLTTL time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string
	CreditsPerPurchase  int

	ScanMode     string
	WorkerCount  int
	TaskLease    time.Duration
	RateLimitRPS float64
	CORSOrigins  []string

	PostgresURI    string
	MigrationsPath string
	AutoMigrate    bool
}

func LoadApp() App {
	a := App{
		Port:    envOr("PORT", "8080"),
		SiteURL: strings.TrimRight(envOr("SITE_URL", "http://localhost:3000"), "/"),

		JWTSecret:   os.Getenv("SUPABASE_JWT_SECRET"),
		JWTIssuer:   os.Getenv("SUPABASE_JWT_ISSUER"),
		JWTAudience: envOr("SUPABASE_JWT_AUDIENCE", "authenticated"),

		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GCPProjectID:  os.Getenv("GCP_PROJECT_ID"),
		GCPLocation:   envOr("GCP_LOCATION", "us-central1"),
		AIModel:       envOr("AI_MODEL", "gemini-2.5-flash"),
		AITemperature: float32(envFloat("AI_TEMPERATURE", 0.2)),
		AITimeout:     envDuration("AI_TIMEOUT", 2*time.Minute),

		GCSBucket:    os.Getenv("GCS_BUCKET"),
		SignedURLTTL: envDuration("SIGNED_URL_TTL", time.Hour),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID"),
		CreditsPerPurchase:  envInt("CREDITS_PER_PURCHASE", 10),

		ScanMode:     strings.ToLower(envOr("SCAN_MODE", ScanModeStream)),
		WorkerCount:  envInt("WORKER_COUNT", 4),
		TaskLease:    envDuration("TASK_LEASE", 5*time.Minute),
		RateLimitRPS: envFloat("RATE_LIMIT_RPS", 1),
		CORSOrigins:  splitCSV(envOr("CORS_ORIGINS", "*")),

		PostgresURI:    os.Getenv("POSTGRES_URI"),
		MigrationsPath: envOr("MIGRATIONS_PATH", "migrations/postgres"),
	}
	a.AutoMigrate, _ = strconv.ParseBool(os.Getenv("AUTO_MIGRATE"))
	if a.ScanMode != ScanModeAsync {
		a.ScanMode = ScanModeStream
	}
	return a
}

// AIConfigured reports whether any generative provider can be built.
func (a App) AIConfigured() bool { return a.GeminiAPIKey != "" || a.GCPProjectID != "" }

func (a App) StripeConfigured() bool { return a.StripeSecretKey != "" && a.StripePriceID != "" }

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
