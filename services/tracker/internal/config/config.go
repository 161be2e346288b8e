package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file used when Load receives an empty path.
// TRACKER_CONFIG overrides it.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("TRACKER_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}

// Storage backends for uploaded PDFs.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string   `yaml:"port"`
	LogLevel               string   `yaml:"logLevel"`
	DatabaseURL            string   `yaml:"databaseURL"`
	DatabaseDriver         string   `yaml:"databaseDriver"`
	DBSlowThreshold        string   `yaml:"dbSlowThreshold"`
	JWTSecret              string   `yaml:"jwtSecret"`
	JWTIssuer              string   `yaml:"jwtIssuer"`
	SessionTTL             string   `yaml:"sessionTTL"`
	JWTLeeway              string   `yaml:"jwtLeeway"`
	BcryptCost             int      `yaml:"bcryptCost"`
	PlaceholderEmailDomain string   `yaml:"placeholderEmailDomain"`
	StorageBackend         string   `yaml:"storageBackend"`
	UploadDir              string   `yaml:"uploadDir"`
	MinioEndpoint          string   `yaml:"minioEndpoint"`
	MinioAccessKey         string   `yaml:"minioAccessKey"`
	MinioSecretKey         string   `yaml:"minioSecretKey"`
	MinioBucket            string   `yaml:"minioBucket"`
	MinioUseSSL            bool     `yaml:"minioUseSSL"`
	MaxUploadBytes         int64    `yaml:"maxUploadBytes"`
	PublicPDFDownloads     *bool    `yaml:"publicPDFDownloads"`
	TrustedProxies         []string `yaml:"trustedProxies"`
}

// PublicPDFs reports whether PDFs are downloadable without a token.
// Defaults to true when unset.
func (c FileConfig) PublicPDFs() bool {
	return c.PublicPDFDownloads == nil || *c.PublicPDFDownloads
}

// Load reads config from path (defaults to ConfigPath).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("TRACKER_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("TRACKER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.DatabaseDriver = v
	}
	if v := os.Getenv("DB_SLOW_THRESHOLD"); v != "" {
		cfg.DBSlowThreshold = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("TRACKER_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("TRACKER_BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BcryptCost = n
		}
	}
	if v := os.Getenv("TRACKER_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = v
	}
	if v := os.Getenv("TRACKER_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("TRACKER_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("TRACKER_PUBLIC_PDF_DOWNLOADS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PublicPDFDownloads = &b
		}
	}
	if v := os.Getenv("TRACKER_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if strings.TrimSpace(cfg.StorageBackend) == "" {
		cfg.StorageBackend = StorageLocal
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == StorageLocal && strings.TrimSpace(cfg.UploadDir) == "" {
		cfg.UploadDir = "uploads"
	}
	if strings.TrimSpace(cfg.PlaceholderEmailDomain) == "" {
		cfg.PlaceholderEmailDomain = "users.booktracker.local"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseJWTLeeway(cfg.JWTLeeway); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseDBSlowThreshold(cfg.DBSlowThreshold); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.BcryptCost < 0 {
		return errors.New("config: bcryptCost must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	switch cfg.StorageBackend {
	case StorageLocal:
	case StorageMinio:
		if cfg.MinioEndpoint == "" {
			return errors.New("config: minioEndpoint is required for minio storage")
		}
		if cfg.MinioAccessKey == "" {
			return errors.New("config: minioAccessKey is required for minio storage")
		}
		if cfg.MinioSecretKey == "" {
			return errors.New("config: minioSecretKey is required for minio storage")
		}
		if cfg.MinioBucket == "" {
			return errors.New("config: minioBucket is required for minio storage")
		}
	default:
		return fmt.Errorf("config: unsupported storageBackend %q (use local or minio)", cfg.StorageBackend)
	}
	return nil
}

// ParseSessionTTL parses optional session TTL duration string.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid sessionTTL duration: %s is negative", ttlStr)
	}
	return dur, nil
}

// ParseJWTLeeway parses optional JWT leeway duration string.
func ParseJWTLeeway(leewayStr string) (time.Duration, error) {
	if leewayStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(leewayStr)
	if err != nil {
		return 0, fmt.Errorf("invalid jwtLeeway duration: %w", err)
	}
	return dur, nil
}

// ParseDBSlowThreshold parses the optional slow query threshold. Zero keeps
// the store default.
func ParseDBSlowThreshold(thresholdStr string) (time.Duration, error) {
	if thresholdStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(thresholdStr)
	if err != nil {
		return 0, fmt.Errorf("invalid dbSlowThreshold duration: %w", err)
	}
	if dur < 0 {
		return 0, errors.New("dbSlowThreshold must be >= 0")
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
