package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sessions "github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	gsessions "github.com/gin-contrib/sessions/postgres"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql (session store)

	"examprephub/internal/api"
	"examprephub/internal/api/handlers"
	"examprephub/internal/config"
	"examprephub/internal/db"
	"examprephub/internal/gateway"
	"examprephub/internal/gemini"
	"examprephub/internal/logger"
	"examprephub/internal/ollama"
	"examprephub/internal/r2"
	"examprephub/internal/workspace"
)

const storeName = "examprephub_session"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !cfg.EnvFileLoaded {
		log.Warn(".env file not found. Relying on system environment variables.")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := db.Open(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open storage", "driver", cfg.StorageDriver, "error", err)
	}
	defer store.Close()

	gw, closeGateway, err := newGateway(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize AI provider", "provider", cfg.AIProvider, "error", err)
	}
	defer closeGateway()

	opts := []workspace.Option{
		workspace.WithDefaultModel(cfg.DefaultModel),
		workspace.WithIdleTimeout(cfg.WorkspaceIdleTimeout),
	}
	archive, err := r2.NewClient(ctx, cfg.R2, log)
	if err != nil {
		log.Fatal("Failed to initialize R2 client", "error", err)
	}
	if archive != nil {
		opts = append(opts, workspace.WithArchiver(archive))
	}
	workspaces := workspace.NewManager(store, gw, log, opts...)
	defer workspaces.Close()

	router := gin.New()
	router.Use(gin.Recovery())

	sessionStore, closeSessions, err := newSessionStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to create session store", "error", err)
	}
	defer closeSessions()
	router.Use(sessions.Sessions(storeName, sessionStore))

	handler := handlers.NewHandler(workspaces, log)
	api.SetupRoutes(router, handler, cfg.FrontendURLs, log)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "port", cfg.Port, "provider", cfg.AIProvider, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Give server 5 seconds to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		return
	}
	log.Info("Server exited properly")
}

// newGateway builds the AI provider selected by AI_PROVIDER.
func newGateway(ctx context.Context, cfg *config.Config, log *logger.Logger) (gateway.Gateway, func(), error) {
	timeouts := gateway.Timeouts(cfg.Timeouts)
	switch cfg.AIProvider {
	case config.ProviderOllama:
		log.Info("Using Ollama directly", "url", cfg.OllamaURL)
		return ollama.NewClient(cfg.OllamaURL, cfg.DefaultModel, timeouts, log), func() {}, nil
	case config.ProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, timeouts, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using Gemini", "model", cfg.GeminiModel)
		return client, func() {
			if err := client.Close(); err != nil {
				log.Warn("Failed to close Gemini client", "error", err)
			}
		}, nil
	default:
		log.Info("Using AI gateway", "url", cfg.GatewayURL)
		return gateway.NewHTTPClient(cfg.GatewayURL, timeouts, log), func() {}, nil
	}
}

// newSessionStore keeps sessions in Postgres when that is the storage backend,
// and in signed cookies otherwise.
func newSessionStore(cfg *config.Config, log *logger.Logger) (sessions.Store, func(), error) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		log.Warn("SESSION_SECRET is not set; using a random key, learners will lose their session on restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, nil, fmt.Errorf("failed to generate session key: %w", err)
		}
	}
	options := sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		Secure:   os.Getenv("GIN_MODE") == gin.ReleaseMode,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	if cfg.StorageDriver != config.StoragePostgres {
		store := cookie.NewStore(secret)
		store.Options(options)
		return store, func() {}, nil
	}

	// A standard sql.DB pool for the session store, using the pgx driver via the stdlib adapter.
	sessionDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database connection for session store: %w", err)
	}
	if err := sessionDB.Ping(); err != nil {
		sessionDB.Close()
		return nil, nil, fmt.Errorf("failed to ping database for session store: %w", err)
	}
	store, err := gsessions.NewStore(sessionDB, secret)
	if err != nil {
		sessionDB.Close()
		return nil, nil, fmt.Errorf("failed to create postgres session store: %w", err)
	}
	store.Options(options)
	log.Info("Session store initialized", "backend", "postgres")
	return store, func() { sessionDB.Close() }, nil
}
