package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"booktracker/pkg/auth"
	"booktracker/pkg/storage"
	"booktracker/pkg/store"
)

const defaultPlaceholderEmailDomain = "users.booktracker.local"

// Config holds runtime configuration for the core application.
// Store, Sessions and Objects may be injected; otherwise they are built
// from the remaining fields.
type Config struct {
	DatabaseURL     string
	DatabaseDriver  string
	DBSlowThreshold time.Duration
	Store           store.Store

	JWTSecret  string
	JWTIssuer  string
	SessionTTL time.Duration
	JWTLeeway  time.Duration
	Sessions   store.SessionStore

	BcryptCost             int
	PlaceholderEmailDomain string

	StorageBackend string
	UploadDir      string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	Objects        storage.ObjectStore

	PublicPDFDownloads bool

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store       store.Store
	sessions    store.SessionStore
	hasher      *auth.PasswordHasher
	dummyHash   string
	objects     storage.ObjectStore
	emailDomain string
	publicPDFs  bool
	now         func() time.Time
}

// New constructs the application, opening the database and object store
// unless they were injected through cfg.
func New(cfg Config) (*App, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	dataStore := cfg.Store
	var opened *store.GormStore
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		opts := []store.GormStoreOption{store.WithDriver(cfg.DatabaseDriver)}
		if cfg.DBSlowThreshold > 0 {
			opts = append(opts, store.WithSlowThreshold(cfg.DBSlowThreshold))
		}
		gs, err := store.NewGormStore(cfg.DatabaseURL, opts...)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		dataStore, opened = gs, gs
	}
	fail := func(err error) (*App, error) {
		if opened != nil {
			_ = opened.Close()
		}
		return nil, err
	}

	sessions := cfg.Sessions
	if sessions == nil {
		js, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, store.JWTOptions{
			Issuer: cfg.JWTIssuer,
			Leeway: cfg.JWTLeeway,
			Now:    now,
		})
		if err != nil {
			return fail(fmt.Errorf("init sessions: %w", err))
		}
		sessions = js
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = newObjectStore(cfg)
		if err != nil {
			return fail(err)
		}
	}

	emailDomain := strings.TrimSpace(cfg.PlaceholderEmailDomain)
	if emailDomain == "" {
		emailDomain = defaultPlaceholderEmailDomain
	}

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	// Compared against on unknown usernames so login timing does not reveal them.
	dummyHash, err := hasher.HashPassword("booktracker-dummy-password")
	if err != nil {
		return fail(fmt.Errorf("init password hasher: %w", err))
	}

	return &App{
		store:       dataStore,
		sessions:    sessions,
		hasher:      hasher,
		dummyHash:   dummyHash,
		objects:     objects,
		emailDomain: emailDomain,
		publicPDFs:  cfg.PublicPDFDownloads,
		now:         now,
	}, nil
}

func newObjectStore(cfg Config) (storage.ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageBackend)) {
	case "", "local":
		dir := cfg.UploadDir
		if strings.TrimSpace(dir) == "" {
			dir = "uploads"
		}
		fs, err := storage.NewFileStore(dir)
		if err != nil {
			return nil, fmt.Errorf("init file store: %w", err)
		}
		return fs, nil
	case "minio":
		ms, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init minio store: %w", err)
		}
		return ms, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.StorageBackend)
	}
}

// PublicPDFDownloads reports whether PDFs are served without a token.
func (a *App) PublicPDFDownloads() bool {
	return a.publicPDFs
}

// Close releases the database connection when the store holds one.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
