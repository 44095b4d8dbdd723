package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // DOCQ_DATABASE_URL (required)
	GRPCAddr    string // DOCQ_GRPC_ADDR (default ":9090")
	HTTPAddr    string // DOCQ_HTTP_ADDR (default ":8080")
	NATSURL     string // DOCQ_NATS_URL (optional, empty = no events)

	// Auth: a JWT secret takes precedence over the shared token.
	AuthToken string // DOCQ_AUTH_TOKEN (optional)
	JWTSecret string // DOCQ_JWT_SECRET (optional)

	// Query behaviour
	QueryMode         string   // DOCQ_QUERY_MODE ("lenient" or "strict", default "lenient")
	OwnerField        string   // DOCQ_OWNER_FIELD (default "userId")
	LedgerCollections []string // DOCQ_LEDGER_COLLECTIONS (comma-separated, default "transactions")
	IDPrefix          string   // DOCQ_ID_PREFIX (default "")

	// Limits
	PlanLimits map[string]int // DOCQ_PLAN_LIMITS ("free=100,pro=10000"; unlisted = unlimited)
	RateLimit  float64        // DOCQ_RATE_LIMIT (requests/second per principal, 0 = disabled)
	RateBurst  int            // DOCQ_RATE_BURST (default 20)

	// Logging
	LogFormat string // DOCQ_LOG_FORMAT ("text" or "json", default "text")
	LogLevel  string // DOCQ_LOG_LEVEL (default "info")

	// Sync settings
	SyncInterval   time.Duration // DOCQ_SYNC_INTERVAL (default 3m; 0 = disabled)
	SyncS3Bucket   string        // DOCQ_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // DOCQ_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // DOCQ_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // DOCQ_SYNC_S3_KEY (default "docq/queries.jsonl")
	SyncGitRepo    string        // DOCQ_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // DOCQ_SYNC_GIT_FILE (default "queries.jsonl")
	SyncGitBranch  string        // DOCQ_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:       os.Getenv("DOCQ_DATABASE_URL"),
		GRPCAddr:          envOrDefault("DOCQ_GRPC_ADDR", ":9090"),
		HTTPAddr:          envOrDefault("DOCQ_HTTP_ADDR", ":8080"),
		NATSURL:           os.Getenv("DOCQ_NATS_URL"),
		AuthToken:         os.Getenv("DOCQ_AUTH_TOKEN"),
		JWTSecret:         os.Getenv("DOCQ_JWT_SECRET"),
		QueryMode:         envOrDefault("DOCQ_QUERY_MODE", "lenient"),
		OwnerField:        envOrDefault("DOCQ_OWNER_FIELD", "userId"),
		LedgerCollections: splitList(envOrDefault("DOCQ_LEDGER_COLLECTIONS", "transactions")),
		IDPrefix:          os.Getenv("DOCQ_ID_PREFIX"),
		LogFormat:         envOrDefault("DOCQ_LOG_FORMAT", "text"),
		LogLevel:          envOrDefault("DOCQ_LOG_LEVEL", "info"),
		SyncS3Bucket:      os.Getenv("DOCQ_SYNC_S3_BUCKET"),
		SyncS3Endpoint:    os.Getenv("DOCQ_SYNC_S3_ENDPOINT"),
		SyncS3Region:      envOrDefault("DOCQ_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:         envOrDefault("DOCQ_SYNC_S3_KEY", "docq/queries.jsonl"),
		SyncGitRepo:       os.Getenv("DOCQ_SYNC_GIT_REPO"),
		SyncGitFile:       envOrDefault("DOCQ_SYNC_GIT_FILE", "queries.jsonl"),
		SyncGitBranch:     envOrDefault("DOCQ_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("DOCQ_DATABASE_URL is required")
	}

	intervalStr := envOrDefault("DOCQ_SYNC_INTERVAL", "3m")
	if intervalStr != "" {
		d, err := time.ParseDuration(intervalStr)
		if err != nil {
			return nil, fmt.Errorf("DOCQ_SYNC_INTERVAL: %w", err)
		}
		c.SyncInterval = d
	}

	limits, err := ParsePlanLimits(os.Getenv("DOCQ_PLAN_LIMITS"))
	if err != nil {
		return nil, fmt.Errorf("DOCQ_PLAN_LIMITS: %w", err)
	}
	c.PlanLimits = limits

	if v := os.Getenv("DOCQ_RATE_LIMIT"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r < 0 {
			return nil, fmt.Errorf("DOCQ_RATE_LIMIT: invalid rate %q", v)
		}
		c.RateLimit = r
	}
	burst, err := strconv.Atoi(envOrDefault("DOCQ_RATE_BURST", "20"))
	if err != nil || burst < 1 {
		return nil, fmt.Errorf("DOCQ_RATE_BURST: must be a positive integer")
	}
	c.RateBurst = burst

	return c, nil
}

// ParsePlanLimits parses "plan=limit" pairs separated by commas.
func ParsePlanLimits(s string) (map[string]int, error) {
	limits := map[string]int{}
	for _, pair := range splitList(s) {
		plan, limit, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(plan) == "" {
			return nil, fmt.Errorf("expected plan=limit, got %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(limit))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid limit for plan %q", plan)
		}
		limits[strings.TrimSpace(plan)] = n
	}
	return limits, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
