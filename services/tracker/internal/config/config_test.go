package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
port: "8000"
logLevel: "info"
databaseURL: "data/books.db"
jwtSecret: "file-secret"
sessionTTL: "30m"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.StorageBackend != StorageLocal {
		t.Fatalf("storageBackend = %q, want local", cfg.StorageBackend)
	}
	if cfg.UploadDir != "uploads" {
		t.Fatalf("uploadDir = %q, want uploads", cfg.UploadDir)
	}
	if cfg.PlaceholderEmailDomain != "users.booktracker.local" {
		t.Fatalf("placeholderEmailDomain = %q", cfg.PlaceholderEmailDomain)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("maxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 50<<20)
	}
	if !cfg.PublicPDFs() {
		t.Fatalf("expected public PDF downloads by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/books?sslmode=disable")
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("TRACKER_UPLOAD_DIR", "/var/lib/tracker")
	t.Setenv("TRACKER_BCRYPT_COST", "11")
	t.Setenv("TRACKER_PUBLIC_PDF_DOWNLOADS", "false")
	t.Setenv("TRACKER_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.1")

	cfg, err := Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !strings.HasPrefix(cfg.DatabaseURL, "postgres://") {
		t.Fatalf("databaseURL = %q, want env override", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("jwtSecret = %q, want env-secret", cfg.JWTSecret)
	}
	if cfg.UploadDir != "/var/lib/tracker" {
		t.Fatalf("uploadDir = %q", cfg.UploadDir)
	}
	if cfg.BcryptCost != 11 {
		t.Fatalf("bcryptCost = %d, want 11", cfg.BcryptCost)
	}
	if cfg.PublicPDFs() {
		t.Fatalf("expected env to disable public PDF downloads")
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "192.168.1.1" {
		t.Fatalf("trustedProxies = %v", cfg.TrustedProxies)
	}
}

func TestLoadReadsPrivatePDFPolicyFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML+"publicPDFDownloads: false\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.PublicPDFs() {
		t.Fatalf("expected private PDF downloads")
	}
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	_, err := Load(writeConfig(t, `
port: "8000"
databaseURL: "data/books.db"
`))
	if err == nil || !strings.Contains(err.Error(), "jwtSecret") {
		t.Fatalf("expected jwtSecret error, got %v", err)
	}
}

func TestValidateConfigRejectsIncompleteMinio(t *testing.T) {
	cfg := FileConfig{
		Port:           "8000",
		DatabaseURL:    "data/books.db",
		JWTSecret:      "secret",
		StorageBackend: StorageMinio,
		MinioEndpoint:  "localhost:9000",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected minio credentials to be required")
	}
	cfg.MinioAccessKey = "ak"
	cfg.MinioSecretKey = "sk"
	cfg.MinioBucket = "books"
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("expected complete minio config to pass: %v", err)
	}
	cfg.StorageBackend = "ftp"
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}

func TestParseDurations(t *testing.T) {
	if d, err := ParseSessionTTL(""); err != nil || d != 0 {
		t.Fatalf("ParseSessionTTL(\"\") = %v, %v", d, err)
	}
	if d, err := ParseSessionTTL("45m"); err != nil || d != 45*time.Minute {
		t.Fatalf("ParseSessionTTL(45m) = %v, %v", d, err)
	}
	if _, err := ParseSessionTTL("-1m"); err == nil {
		t.Fatalf("expected negative ttl to fail")
	}
	if _, err := ParseJWTLeeway("soon"); err == nil {
		t.Fatalf("expected invalid leeway to fail")
	}
	if d, err := ParseDBSlowThreshold("250ms"); err != nil || d != 250*time.Millisecond {
		t.Fatalf("ParseDBSlowThreshold(250ms) = %v, %v", d, err)
	}
	if _, err := ParseDBSlowThreshold("-1s"); err == nil {
		t.Fatalf("expected negative slow threshold to fail")
	}
}

func TestLoadDBSlowThreshold(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML+"dbSlowThreshold: \"2s\"\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBSlowThreshold != "2s" {
		t.Fatalf("dbSlowThreshold = %q, want 2s", cfg.DBSlowThreshold)
	}

	t.Setenv("DB_SLOW_THRESHOLD", "500ms")
	cfg, err = Load(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBSlowThreshold != "500ms" {
		t.Fatalf("dbSlowThreshold = %q, want env override", cfg.DBSlowThreshold)
	}

	if _, err := Load(writeConfig(t, baseYAML+"dbSlowThreshold: \"slow\"\n")); err == nil {
		t.Fatalf("expected invalid dbSlowThreshold to fail")
	}
}
