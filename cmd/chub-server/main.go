package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/etalab-ia/ami-ia-chub-app/internal/config"
	"github.com/etalab-ia/ami-ia-chub-app/internal/domain/patient"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/auth"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/db"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/elastic"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/fhirclient"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/graph"
	"github.com/etalab-ia/ami-ia-chub-app/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chub-server",
		Short: "Patient record timeline API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(hashCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage per-patient search indices",
	}

	loadCmd := &cobra.Command{
		Use:   "load <patient-id>",
		Short: "Load a patient's documents into their index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := buildService()
			if err != nil {
				return err
			}
			if err := svc.EnsureIndexed(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.Info().Str("patient", args[0]).Msg("index loaded")
			return nil
		},
	}

	dropCmd := &cobra.Command{
		Use:   "drop <patient-id>",
		Short: "Drop a patient's index so it reloads on next access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, logger, err := buildService()
			if err != nil {
				return err
			}
			if err := svc.DropIndex(cmd.Context(), args[0]); err != nil {
				return err
			}
			logger.Info().Str("patient", args[0]).Msg("index dropped")
			return nil
		},
	}

	cmd.AddCommand(loadCmd)
	cmd.AddCommand(dropCmd)
	return cmd
}

func hashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Hash a password for the LOCAL_USERS setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

// buildService wires the backends needed by the index admin commands.
func buildService() (*patient.Service, zerolog.Logger, error) {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, logger, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, logger, err
	}

	es, err := elastic.New(elastic.Config{
		URL:      cfg.ElasticURL,
		Username: cfg.ElasticUsername,
		Password: cfg.ElasticPassword,
	}, logger)
	if err != nil {
		return nil, logger, err
	}
	fhir := fhirclient.New(cfg.FHIRURL, logger)

	g, err := graph.New(graph.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
	}, logger)
	if err != nil {
		return nil, logger, err
	}

	return patient.NewService(fhir, es, g, logger), logger, nil
}

// parseLocalUsers reads a "user:hash,user:hash" list.
func parseLocalUsers(raw string) map[string]string {
	users := map[string]string{}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			users[parts[0]] = parts[1]
		}
	}
	return users
}

func runServer() error {
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Backends
	es, err := elastic.New(elastic.Config{
		URL:      cfg.ElasticURL,
		Username: cfg.ElasticUsername,
		Password: cfg.ElasticPassword,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create elasticsearch client")
	}
	if err := es.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("elasticsearch not reachable yet")
	}

	fhir := fhirclient.New(cfg.FHIRURL, logger)

	g, err := graph.New(graph.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create graph client")
	}
	defer g.Close(ctx)

	// User realms
	var stores []auth.UserStore
	if cfg.LocalUsers != "" {
		stores = append(stores, auth.NewStaticStore(cfg.LocalRealm, parseLocalUsers(cfg.LocalUsers)))
	}
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, 10)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to user database")
		}
		defer pool.Close()
		stores = append(stores, auth.NewPGStore(cfg.PGRealm, pool))
		logger.Info().Msg("connected to user database")
	}

	authCfg := auth.Config{
		Secret:          cfg.JWTSecret,
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
		DefaultLifetime: cfg.TokenLifetimeDuration(),
		MaxLifetime:     cfg.TokenMaxLifetimeDuration(),
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Login
	login := auth.NewLoginHandler(authCfg, stores, logger)
	login.RegisterRoutes(e.Group(""))

	// Patient API, token-protected and rate-limited
	fhirGroup := e.Group("/fhir")
	fhirGroup.Use(auth.JWTMiddleware(authCfg))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	fhirGroup.Use(middleware.RateLimit(rateLimitCfg))

	// The first timeline request for a patient pulls their whole
	// record from the gateway before answering.
	fhirGroup.Use(middleware.RequestTimeout(2 * time.Minute))

	svc := patient.NewService(fhir, es, g, logger)
	handler := patient.NewHandler(svc, logger)
	handler.RegisterRoutes(fhirGroup)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
