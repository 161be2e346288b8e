package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booktracker/internal/util"
	"booktracker/services/tracker/internal/app"
	"booktracker/services/tracker/internal/config"
	"booktracker/services/tracker/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session ttl: %v", err)
	}
	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	dbSlowThreshold, err := config.ParseDBSlowThreshold(cfg.DBSlowThreshold)
	if err != nil {
		log.Fatalf("failed to parse db slow threshold: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:            cfg.DatabaseURL,
		DatabaseDriver:         cfg.DatabaseDriver,
		DBSlowThreshold:        dbSlowThreshold,
		JWTSecret:              cfg.JWTSecret,
		JWTIssuer:              cfg.JWTIssuer,
		SessionTTL:             sessionTTL,
		JWTLeeway:              jwtLeeway,
		BcryptCost:             cfg.BcryptCost,
		PlaceholderEmailDomain: cfg.PlaceholderEmailDomain,
		StorageBackend:         cfg.StorageBackend,
		UploadDir:              cfg.UploadDir,
		MinioEndpoint:          cfg.MinioEndpoint,
		MinioAccessKey:         cfg.MinioAccessKey,
		MinioSecretKey:         cfg.MinioSecretKey,
		MinioBucket:            cfg.MinioBucket,
		MinioUseSSL:            cfg.MinioUseSSL,
		PublicPDFDownloads:     cfg.PublicPDFs(),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() {
		if err := appCore.Close(); err != nil {
			logger.Warn("close app failed", "err", err)
		}
	}()

	httpServer, err := server.New(server.Config{
		App:            appCore,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("listen failed", "addr", addr, "err", err)
		return
	}
	slog.Info("tracker server listening", "addr", addr)
	if err := serve(ctx, srv, ln, shutdownTimeout); err != nil {
		logger.Error("server error", "err", err)
	}
}

// serve runs srv on ln until ctx is done, then drains in-flight requests.
// It returns only after shutdown has finished.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	drained := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), timeout)
		defer cancelShutdown()
		drained <- srv.Shutdown(shutdownCtx)
	}()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	cancel()
	if shutdownErr := <-drained; shutdownErr != nil && err == nil {
		err = fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return err
}
