package http

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ParwinderBaidwan/PeepPost/internal/auth"
	"github.com/ParwinderBaidwan/PeepPost/internal/config"
	"github.com/ParwinderBaidwan/PeepPost/internal/core"
	"github.com/ParwinderBaidwan/PeepPost/internal/service/conversations"
	"github.com/ParwinderBaidwan/PeepPost/internal/store/sqlite"
)

// testEnv is a fully wired server over an in-memory store.
type testEnv struct {
	deps Deps
	cfg  config.Config
}

// newTestEnv builds services over a fresh in-memory SQLite store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.JWTIssuer = "test"
	cfg.JWTAudience = "test"
	cfg.PingInterval = 0

	disabledLogger := zerolog.Nop()
	presence := core.NewRegistry(&disabledLogger)
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	return &testEnv{
		deps: Deps{
			Auth:          authService,
			Conversations: conversations.New(st, presence, &disabledLogger, conversations.Options{}),
			Presence:      presence,
		},
		cfg: cfg,
	}
}

// register creates a user and returns its id and token.
func (e *testEnv) register(t *testing.T, username string) (string, string) {
	t.Helper()

	res, err := e.deps.Auth.Register(context.Background(), username, "password123", "")
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	return res.User.ID, res.Token
}
