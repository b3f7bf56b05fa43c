package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/auth"
	"github.com/ParwinderBaidwan/PeepPost/internal/config"
	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/service/conversations"
	"github.com/ParwinderBaidwan/PeepPost/internal/store"
	"github.com/ParwinderBaidwan/PeepPost/internal/store/sqlite"
	transporthttp "github.com/ParwinderBaidwan/PeepPost/internal/transport/http"
)

// App wires together store, services and transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	presence        *core.Registry
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	presence := core.NewRegistry(logger)
	deps := transporthttp.Deps{
		Auth:     auth.NewService(st, jwtConfig),
		Presence: presence,
		Conversations: conversations.New(st, presence, logger, conversations.Options{
			MaxTextLength:   cfg.MaxTextLength,
			HistoryPageSize: cfg.HistoryPageSize,
		}),
	}

	return &App{
		server:          transporthttp.NewServer(deps, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		presence:        presence,
		store:           st,
		log:             logger,
	}, nil
}

// Migrate applies the schema to the configured database and exits.
func Migrate(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema up to date")
	return nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	// Hijacked websocket connections are not closed by Shutdown.
	for _, userID := range a.presence.Snapshot() {
		a.presence.KickUser(userID)
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
