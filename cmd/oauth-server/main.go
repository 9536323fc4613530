// Command oauth-server runs a standalone OAuth 2.0 authorization server for
// account linking. Configuration comes from a YAML file (OAUTH_CONFIG) with
// OAUTH_ environment overrides; storage is in-memory unless a Valkey address
// is configured.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	oauth "github.com/soundbridge/oauth"
	"github.com/soundbridge/oauth/config"
	"github.com/soundbridge/oauth/instrumentation"
	"github.com/soundbridge/oauth/security"
	"github.com/soundbridge/oauth/server"
	"github.com/soundbridge/oauth/storage"
	memorystore "github.com/soundbridge/oauth/storage/memory"
	valkeystore "github.com/soundbridge/oauth/storage/valkey"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := setupLogger()

	if err := run(logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("OAUTH_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := seedClients(ctx, store, cfg.Clients, logger); err != nil {
		return err
	}

	srv, err := server.New(store, store, store, &server.Config{
		Issuer:               cfg.Issuer,
		PendingGrantTTL:      cfg.Tokens.PendingGrantTTL,
		AuthorizationCodeTTL: cfg.Tokens.AuthorizationCodeTTL,
		AccessTokenTTL:       cfg.Tokens.AccessTokenTTL,
		RefreshTokenTTL:      cfg.Tokens.RefreshTokenTTL,
		RotateRefreshTokens:  cfg.Tokens.RotateRefreshTokens,
		RequirePKCE:          cfg.Tokens.RequirePKCE,
		TrustProxy:           cfg.TrustProxy,
		TrustedProxyCount:    cfg.TrustedProxyCount,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv.SetAuditor(security.NewAuditor(logger, cfg.Audit.Enabled))

	if cfg.RateLimit.Enabled {
		limiter := security.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
		defer limiter.Stop()
		srv.SetRateLimiter(limiter)
	}

	if cfg.Metrics.Enabled {
		inst, err := instrumentation.New(instrumentation.Config{
			ServiceName: cfg.ServiceName,
			Enabled:     true,
		})
		if err != nil {
			return fmt.Errorf("failed to create instrumentation: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := inst.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Instrumentation shutdown failed", "error", err)
			}
		}()
		if mem, ok := store.(*memorystore.Store); ok {
			if err := inst.RegisterStorageSizeCallbacks(
				func() int64 { g, _, _ := mem.Counts(); return g },
				func() int64 { _, c, _ := mem.Counts(); return c },
				func() int64 { _, _, t := mem.Counts(); return t },
			); err != nil {
				logger.Warn("Failed to register storage gauges", "error", err)
			}
		}
		srv.SetInstrumentation(inst)
	}

	handler, err := oauth.NewHandler(srv, oauth.Config{
		ServiceName: cfg.ServiceName,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting OAuth server",
			"addr", httpServer.Addr,
			"clients", len(cfg.Clients),
			"storage", storageBackendName(cfg),
			"rate_limiting", cfg.RateLimit.Enabled,
			"audit_logging", cfg.Audit.Enabled,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// buildStore selects the storage backend from configuration
func buildStore(cfg *config.Config, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.Valkey.Address == "" {
		mem := memorystore.New()
		mem.SetLogger(logger)
		return mem, mem.Stop, nil
	}

	vcfg := valkeystore.Config{
		Address:   cfg.Valkey.Address,
		Password:  cfg.Valkey.Password,
		DB:        cfg.Valkey.DB,
		KeyPrefix: cfg.Valkey.KeyPrefix,
		Logger:    logger,
	}
	if cfg.Valkey.TLS {
		vcfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	vk, err := valkeystore.New(vcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}
	return vk, vk.Close, nil
}

func storageBackendName(cfg *config.Config) string {
	if cfg.Valkey.Address != "" {
		return "valkey"
	}
	return "memory"
}

// seedClients registers the configured clients. Confidential client secrets
// are hashed before registration so plaintext never reaches a persistent
// backend. Already-registered clients are skipped; the config file stays
// authoritative across restarts against an external store.
func seedClients(ctx context.Context, store storage.ClientStore, clients []config.ClientConfig, logger *slog.Logger) error {
	for _, cc := range clients {
		client := &storage.Client{
			ClientID:     cc.ClientID,
			ClientType:   cc.ClientType,
			Name:         cc.Name,
			RedirectURIs: cc.RedirectURIs,
			CreatedAt:    time.Now(),
		}
		if client.ClientType == "" {
			client.ClientType = storage.ClientTypePublic
		}
		if cc.ClientSecret != "" {
			hash, err := server.HashClientSecret(cc.ClientSecret)
			if err != nil {
				return fmt.Errorf("failed to hash secret for client %s: %w", cc.ClientID, err)
			}
			client.ClientSecretHash = hash
		}

		err := store.RegisterClient(ctx, client)
		switch {
		case err == nil:
			logger.Info("Registered client", "client_id", client.ClientID, "type", client.ClientType)
		case errors.Is(err, storage.ErrClientExists):
			logger.Debug("Client already registered", "client_id", client.ClientID)
		default:
			return fmt.Errorf("failed to register client %s: %w", cc.ClientID, err)
		}
	}
	return nil
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("OAUTH_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("OAUTH_LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
