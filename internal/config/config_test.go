package config

import (
	"testing"
	"time"
)

// syncEnvVars lists all sync-related env vars that must be cleared between tests.
var syncEnvVars = []string{
	"DOCQ_SYNC_INTERVAL", "DOCQ_SYNC_S3_BUCKET", "DOCQ_SYNC_S3_ENDPOINT",
	"DOCQ_SYNC_S3_REGION", "DOCQ_SYNC_S3_KEY", "DOCQ_SYNC_GIT_REPO",
	"DOCQ_SYNC_GIT_FILE", "DOCQ_SYNC_GIT_BRANCH",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOCQ_DATABASE_URL", "DOCQ_GRPC_ADDR", "DOCQ_HTTP_ADDR", "DOCQ_NATS_URL",
		"DOCQ_QUERY_MODE", "DOCQ_OWNER_FIELD", "DOCQ_LEDGER_COLLECTIONS", "DOCQ_PLAN_LIMITS",
		"DOCQ_RATE_LIMIT", "DOCQ_RATE_BURST", "DOCQ_LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
	for _, key := range syncEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
	}{
		{
			name:    "MissingDatabaseURL",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:         "DefaultAddresses",
			env:          map[string]string{"DOCQ_DATABASE_URL": "postgres://localhost/docq"},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"DOCQ_DATABASE_URL": "postgres://db:5432/docq",
				"DOCQ_GRPC_ADDR":    ":5050",
				"DOCQ_HTTP_ADDR":    ":3000",
				"DOCQ_NATS_URL":     "nats://localhost:4222",
			},
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.DatabaseURL != tc.env["DOCQ_DATABASE_URL"] {
				t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, tc.env["DOCQ_DATABASE_URL"])
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoadSyncDefaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("DOCQ_DATABASE_URL", "postgres://localhost/docq")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 3*time.Minute {
		t.Errorf("SyncInterval = %v, want 3m", cfg.SyncInterval)
	}
	if cfg.SyncS3Region != "us-east-1" {
		t.Errorf("SyncS3Region = %q, want %q", cfg.SyncS3Region, "us-east-1")
	}
	if cfg.SyncS3Key != "docq/queries.jsonl" {
		t.Errorf("SyncS3Key = %q, want %q", cfg.SyncS3Key, "docq/queries.jsonl")
	}
	if cfg.SyncGitFile != "queries.jsonl" {
		t.Errorf("SyncGitFile = %q, want %q", cfg.SyncGitFile, "queries.jsonl")
	}
	if cfg.SyncGitBranch != "main" {
		t.Errorf("SyncGitBranch = %q, want %q", cfg.SyncGitBranch, "main")
	}
}

func TestLoadSyncCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("DOCQ_DATABASE_URL", "postgres://localhost/docq")
	t.Setenv("DOCQ_SYNC_INTERVAL", "10m")
	t.Setenv("DOCQ_SYNC_S3_BUCKET", "my-bucket")
	t.Setenv("DOCQ_SYNC_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("DOCQ_SYNC_S3_REGION", "eu-west-1")
	t.Setenv("DOCQ_SYNC_S3_KEY", "custom/key.jsonl")
	t.Setenv("DOCQ_SYNC_GIT_REPO", "/tmp/repo")
	t.Setenv("DOCQ_SYNC_GIT_FILE", "custom.jsonl")
	t.Setenv("DOCQ_SYNC_GIT_BRANCH", "backup")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 10*time.Minute {
		t.Errorf("SyncInterval = %v, want 10m", cfg.SyncInterval)
	}
	if cfg.SyncS3Bucket != "my-bucket" {
		t.Errorf("SyncS3Bucket = %q", cfg.SyncS3Bucket)
	}
	if cfg.SyncS3Endpoint != "http://minio:9000" {
		t.Errorf("SyncS3Endpoint = %q", cfg.SyncS3Endpoint)
	}
	if cfg.SyncS3Region != "eu-west-1" {
		t.Errorf("SyncS3Region = %q", cfg.SyncS3Region)
	}
	if cfg.SyncS3Key != "custom/key.jsonl" {
		t.Errorf("SyncS3Key = %q", cfg.SyncS3Key)
	}
	if cfg.SyncGitRepo != "/tmp/repo" {
		t.Errorf("SyncGitRepo = %q", cfg.SyncGitRepo)
	}
	if cfg.SyncGitFile != "custom.jsonl" {
		t.Errorf("SyncGitFile = %q", cfg.SyncGitFile)
	}
	if cfg.SyncGitBranch != "backup" {
		t.Errorf("SyncGitBranch = %q", cfg.SyncGitBranch)
	}
}

func TestLoadSyncInvalidInterval(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("DOCQ_DATABASE_URL", "postgres://localhost/docq")
	t.Setenv("DOCQ_SYNC_INTERVAL", "not-a-duration")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid DOCQ_SYNC_INTERVAL")
	}
}

func TestLoadSyncDisabled(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("DOCQ_DATABASE_URL", "postgres://localhost/docq")
	t.Setenv("DOCQ_SYNC_INTERVAL", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SyncInterval != 0 {
		t.Errorf("SyncInterval = %v, want 0 (disabled)", cfg.SyncInterval)
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestLoadQueryDefaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("DOCQ_DATABASE_URL", "postgres://localhost/docq")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QueryMode != "lenient" {
		t.Errorf("QueryMode = %q, want lenient", cfg.QueryMode)
	}
	if cfg.OwnerField != "userId" {
		t.Errorf("OwnerField = %q, want userId", cfg.OwnerField)
	}
	if len(cfg.LedgerCollections) != 1 || cfg.LedgerCollections[0] != "transactions" {
		t.Errorf("LedgerCollections = %v, want [transactions]", cfg.LedgerCollections)
	}
	if len(cfg.PlanLimits) != 0 {
		t.Errorf("PlanLimits = %v, want empty", cfg.PlanLimits)
	}
	if cfg.RateLimit != 0 || cfg.RateBurst != 20 {
		t.Errorf("RateLimit = %v, RateBurst = %d", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestLoadQueryCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("DOCQ_DATABASE_URL", "postgres://localhost/docq")
	t.Setenv("DOCQ_QUERY_MODE", "strict")
	t.Setenv("DOCQ_LEDGER_COLLECTIONS", "transactions, entries ,")
	t.Setenv("DOCQ_PLAN_LIMITS", "free=100, pro=10000")
	t.Setenv("DOCQ_RATE_LIMIT", "2.5")
	t.Setenv("DOCQ_RATE_BURST", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QueryMode != "strict" {
		t.Errorf("QueryMode = %q", cfg.QueryMode)
	}
	if len(cfg.LedgerCollections) != 2 || cfg.LedgerCollections[1] != "entries" {
		t.Errorf("LedgerCollections = %v", cfg.LedgerCollections)
	}
	if cfg.PlanLimits["free"] != 100 || cfg.PlanLimits["pro"] != 10000 {
		t.Errorf("PlanLimits = %v", cfg.PlanLimits)
	}
	if cfg.RateLimit != 2.5 || cfg.RateBurst != 5 {
		t.Errorf("RateLimit = %v, RateBurst = %d", cfg.RateLimit, cfg.RateBurst)
	}
}

func TestParsePlanLimitsInvalid(t *testing.T) {
	for _, in := range []string{"free", "=5", "free=x", "free=-1"} {
		if _, err := ParsePlanLimits(in); err == nil {
			t.Errorf("ParsePlanLimits(%q) expected error", in)
		}
	}
}
