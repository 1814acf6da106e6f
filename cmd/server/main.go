package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"autodealer/internal/adapters/api"
	"autodealer/internal/adapters/api/middleware"
	"autodealer/internal/adapters/db"
	"autodealer/internal/adapters/db/backend"
	"autodealer/internal/adapters/identity"
	appauth "autodealer/internal/application/auth"
	"autodealer/internal/application/guard"
	"autodealer/internal/config"
	"autodealer/internal/infrastructure/metrics"
	"autodealer/internal/infrastructure/token"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}

	// Load configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("identity_url", cfg.Identity.BaseURL).
		Str("storage_driver", cfg.Storage.Driver).
		Bool("token_verify", cfg.Token.Verify).
		Msg("Starting autodealer session server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, closeStore, err := backend.Open(openCtx, cfg.Storage)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open session storage")
	}
	defer closeStore()

	codec, err := token.NewCodecFromConfig(cfg.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure token codec")
	}
	if !cfg.Token.Verify {
		log.Warn().Msg("Token signatures are not verified, the identity API remains the enforcement point")
	}

	// Initialize guard
	routes := guard.DefaultRoutes()
	if cfg.Guard.RoutesFile != "" {
		routes, err = guard.LoadRoutes(cfg.Guard.RoutesFile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load guard routes")
		}
	}
	viewGuard := guard.New(routes, guard.Policy{LoginPath: cfg.Guard.LoginPath, HomePath: cfg.Guard.HomePath})

	// One session store per browser, each with its own identity cookie jar
	m := metrics.New()
	registry := appauth.NewRegistry(func(browserID string) (*appauth.Service, error) {
		client, err := identity.NewClient(cfg.Identity.BaseURL, identity.WithTimeout(cfg.Identity.Timeout))
		if err != nil {
			return nil, err
		}
		repo := db.NewSessionRepository(store, cfg.Storage.Key+"."+browserID)
		return appauth.NewService(repo, client, codec, appauth.WithMetrics(m)), nil
	}, cfg.Browser.IdleTimeout, appauth.WithRegistryMetrics(m))
	defer registry.Close()

	// Initialize API handler
	handler := api.NewHandler(registry, viewGuard, m, middleware.CookieOptions{
		Name:   cfg.Browser.CookieName,
		Secure: cfg.Browser.CookieSecure,
	}, cfg.AllowedOrigin)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Browser cookies require credentialed CORS, which cannot use a wildcard origin
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
	}
	if cfg.AllowedOrigin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{cfg.AllowedOrigin}
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	handler.RegisterRoutes(r)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		handler.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	// Start server
	log.Info().Msgf("Listening on port %s", cfg.HTTPPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
	log.Info().Msg("Server stopped")
}
