// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root. New opens the document store, then wires:
//
//	DocumentStore → credential.Store ─┐
//	DocumentStore → identity.DocumentDirectory → identity.Resolver ─┼→ service.Reconciler → TokenHandler
//	ingress.Normalizer ───────────────┘
//	provider.Client + auth.StateService + Reconciler → service.OAuthService → OAuthHandler
//
// The OAuth routes are only mounted when a Google client id is configured.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/token-keeper/internal/auth"
	"github.com/sakif/token-keeper/internal/config"
	"github.com/sakif/token-keeper/internal/credential"
	"github.com/sakif/token-keeper/internal/handler"
	"github.com/sakif/token-keeper/internal/identity"
	"github.com/sakif/token-keeper/internal/ingress"
	"github.com/sakif/token-keeper/internal/middleware"
	"github.com/sakif/token-keeper/internal/provider"
	"github.com/sakif/token-keeper/internal/repository"
	boltRepo "github.com/sakif/token-keeper/internal/repository/bolt"
	sqliteRepo "github.com/sakif/token-keeper/internal/repository/sqlite"
	"github.com/sakif/token-keeper/internal/service"
)

const shutdownTimeout = 30 * time.Second

// store is what the server needs from a document-store driver.
type store interface {
	repository.DocumentStore
	Ping(ctx context.Context) error
	Close() error
}

// Server owns the router and the store connection. The store is closed when
// Start returns, or by Close if Start is never called.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	store  store
}

// New opens the configured store, prepares its collections and builds the
// router. The store is closed again if any later step fails.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		store:  st,
	}

	if err := s.setupRoutes(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func openStore(cfg *config.Config) (store, error) {
	switch cfg.StoreDriver {
	case config.DriverBolt:
		return boltRepo.Open(cfg.StoreEndpoint, cfg.StoreProjectID)
	case config.DriverSQLite:
		return sqliteRepo.New(cfg.StoreEndpoint, cfg.StoreProjectID)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// setupRoutes wires the dependency chain and registers routes.
//
// ROUTES:
// GET  /healthz               → store liveness
// POST /api/tokens            → credential upsert        [service key]
// GET  /auth/google           → consent redirect          [OAuth only]
// GET  /auth/google/callback  → code exchange + store     [OAuth only]
// POST /auth/refresh          → refresh stored credential [OAuth only, service key]
func (s *Server) setupRoutes(ctx context.Context) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	tokens := repository.Collection{Database: s.cfg.DatabaseID, ID: s.cfg.TokensCollectionID}
	identities := repository.Collection{Database: s.cfg.DatabaseID, ID: s.cfg.IdentitiesCollectionID}

	creds, err := credential.New(ctx, s.store, tokens, s.logger)
	if err != nil {
		return err
	}
	dir, err := identity.NewDocumentDirectory(ctx, s.store, identities)
	if err != nil {
		return err
	}

	reconciler := service.NewReconciler(creds, identity.NewResolver(dir, s.logger), ingress.New(s.logger), s.logger)
	requireKey := auth.RequireServiceKey(s.cfg.StoreAPIKey)

	s.router.Get("/healthz", handler.NewHealthHandler(s.store, s.logger).HandleHealth)

	tokenHandler := handler.NewTokenHandler(reconciler, s.logger)
	s.router.Route("/api", func(r chi.Router) {
		r.Use(requireKey)
		r.Post("/tokens", tokenHandler.HandleUpsert)
	})

	if !s.cfg.OAuthEnabled() {
		s.logger.Info("GOOGLE_CLIENT_ID not set, OAuth routes disabled")
		return nil
	}

	states, err := auth.NewStateService(s.cfg.StateSecret)
	if err != nil {
		return err
	}
	client := provider.NewClient(provider.Config{
		AuthURL:     s.cfg.GoogleAuthURL,
		TokenURL:    s.cfg.GoogleTokenURL,
		UserInfoURL: s.cfg.GoogleUserInfoURL,
		HTTPClient:  &http.Client{Timeout: s.cfg.ProviderTimeout},
	}, s.logger)

	oauthService := service.NewOAuthService(client, states, reconciler, creds, service.OAuthConfig{
		Provider:     provider.Google,
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		RedirectURI:  s.cfg.CallbackURL(),
	}, s.logger)
	oauthHandler := handler.NewOAuthHandler(oauthService, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/google", oauthHandler.HandleLogin)
		r.Get("/google/callback", oauthHandler.HandleCallback)
		r.With(requireKey).Post("/refresh", oauthHandler.HandleRefresh)
	})

	return nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store. Only needed when Start is never called.
func (s *Server) Close() error {
	return s.store.Close()
}

// Start serves until ctx is cancelled, then drains in-flight requests for up
// to 30 seconds and closes the store.
func (s *Server) Start(ctx context.Context) error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("environment", s.cfg.Environment),
			slog.String("driver", s.cfg.StoreDriver),
			slog.Bool("oauth", s.cfg.OAuthEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
