package config

import (
	"testing"
	"time"
)

func TestLoad_AllVarsSet(t *testing.T) {
	t.Setenv("JAM_LISTEN_ADDR", ":9090")
	t.Setenv("JAM_DB_PATH", "/tmp/test.db")
	t.Setenv("JAM_API_KEYS", "key1,key2")
	t.Setenv("JAM_CORS_ORIGINS", "https://app.example.com")
	t.Setenv("JAM_CONCURRENCY", "8")
	t.Setenv("JAM_QUEUE_SIZE", "500")
	t.Setenv("JAM_INSERT_DELAY_MS", "25")
	t.Setenv("JAM_SEED_COMPANIES", "200")
	t.Setenv("JAM_RATE_LIMIT_RPS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "key1" || cfg.APIKeys[1] != "key2" {
		t.Errorf("APIKeys = %v, want [key1 key2]", cfg.APIKeys)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("CORSOrigins = %v, want [https://app.example.com]", cfg.CORSOrigins)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.QueueSize != 500 {
		t.Errorf("QueueSize = %d, want 500", cfg.QueueSize)
	}
	if cfg.InsertDelay != 25*time.Millisecond {
		t.Errorf("InsertDelay = %v, want 25ms", cfg.InsertDelay)
	}
	if cfg.SeedCompanies != 200 {
		t.Errorf("SeedCompanies = %d, want 200", cfg.SeedCompanies)
	}
	if cfg.RateLimitRPS != 10 {
		t.Errorf("RateLimitRPS = %d, want 10", cfg.RateLimitRPS)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"JAM_LISTEN_ADDR", "JAM_DB_PATH", "JAM_API_KEYS", "JAM_CORS_ORIGINS",
		"JAM_CONCURRENCY", "JAM_QUEUE_SIZE", "JAM_INSERT_DELAY_MS",
		"JAM_SEED_COMPANIES", "JAM_RATE_LIMIT_RPS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error with defaults, got: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("default ListenAddr = %q, want %q", cfg.ListenAddr, ":8080")
	}
	if cfg.DBPath != "jam.db" {
		t.Errorf("default DBPath = %q, want %q", cfg.DBPath, "jam.db")
	}
	if len(cfg.APIKeys) != 0 {
		t.Errorf("default APIKeys = %v, want empty", cfg.APIKeys)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("default CORSOrigins = %v, want [http://localhost:5173]", cfg.CORSOrigins)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("default Concurrency = %d, want 4", cfg.Concurrency)
	}
	if cfg.QueueSize != 100 {
		t.Errorf("default QueueSize = %d, want 100", cfg.QueueSize)
	}
	if cfg.InsertDelay != 100*time.Millisecond {
		t.Errorf("default InsertDelay = %v, want 100ms", cfg.InsertDelay)
	}
	if cfg.SeedCompanies != 1000 {
		t.Errorf("default SeedCompanies = %d, want 1000", cfg.SeedCompanies)
	}
	if cfg.RateLimitRPS != 0 {
		t.Errorf("default RateLimitRPS = %d, want 0", cfg.RateLimitRPS)
	}
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	t.Setenv("JAM_CONCURRENCY", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero concurrency, got nil")
	}
}

func TestLoad_NonNumericQueueSize(t *testing.T) {
	t.Setenv("JAM_QUEUE_SIZE", "lots")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric queue size, got nil")
	}
}

func TestLoad_NegativeInsertDelay(t *testing.T) {
	t.Setenv("JAM_INSERT_DELAY_MS", "-5")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative insert delay, got nil")
	}
}
