package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/HenryGreene10/propertyfish/internal/config"
	"github.com/HenryGreene10/propertyfish/internal/handler"
	"github.com/HenryGreene10/propertyfish/internal/logging"
	"github.com/HenryGreene10/propertyfish/internal/session"
	"github.com/HenryGreene10/propertyfish/internal/store"
	"github.com/HenryGreene10/propertyfish/internal/upstream"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Structured logging
	cleanupLog, err := logging.Setup(logging.Config{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer cleanupLog()

	slog.Info("propertyfish session gateway",
		"version", Version, "build_time", BuildTime, "git_commit", GitCommit)

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Session storage: PostgreSQL when configured, in-memory otherwise
	var (
		sessionStore store.Store
		activity     store.ActivityLogger = store.NopActivityLogger{}
		onEvict      func(string)
	)
	if cfg.Postgres.DSN != "" {
		pg, err := store.NewPostgresStore(
			cfg.Postgres.DSN,
			cfg.Postgres.MaxConnections,
			cfg.Postgres.MaxIdleConnections,
		)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare database schema: %v", err)
		}
		sessionStore = pg
		activity = pg
		slog.Info("connected to PostgreSQL session store")

		// Prune abandoned session state in the background
		maxAge := time.Duration(cfg.Session.MaxAgeDays) * 24 * time.Hour
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				n, err := pg.PruneSessions(context.Background(), maxAge)
				if err != nil {
					slog.Warn("session prune failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("pruned stale sessions", "rows", n)
				}
			}
		}()
	} else {
		mem := store.NewMemoryStore()
		sessionStore = mem
		onEvict = mem.DropSession
		slog.Info("using in-memory session store")
	}

	// Upstream property API client
	api := upstream.NewClient(cfg.Upstream.APIBase, time.Duration(cfg.Upstream.TimeoutSeconds)*time.Second)
	slog.Info("upstream API configured", "base", cfg.Upstream.APIBase)

	// Session registry
	registry, err := session.NewRegistry(cfg.Session.Capacity, func(id string) *session.Controller {
		return session.NewController(id, api, sessionStore, activity, cfg.Search.PageSize)
	}, onEvict)
	if err != nil {
		log.Fatalf("Failed to create session registry: %v", err)
	}

	// Initialize handlers
	sessionHandler := handler.NewSessionHandler(registry)
	propertyHandler := handler.NewPropertyHandler(api)

	// Setup Gin router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.AllowedOrigins}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// Health check endpoint, including upstream reachability
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		upstreamStatus := "ok"
		if err := api.Health(ctx); err != nil {
			upstreamStatus = err.Error()
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"service":  "propertyfish-gateway",
			"version":  Version,
			"upstream": upstreamStatus,
			"sessions": registry.Len(),
		})
	})

	// Version endpoint
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	// API routes
	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/sessions", sessionHandler.Create)
		apiV1.GET("/sessions/:id", sessionHandler.State)
		apiV1.POST("/sessions/:id/search", sessionHandler.Apply)
		apiV1.POST("/sessions/:id/search/more", sessionHandler.LoadMore)
		apiV1.POST("/sessions/:id/chat", sessionHandler.Chat)
		apiV1.POST("/sessions/:id/restore", sessionHandler.Restore)
		apiV1.GET("/sessions/:id/chat/history", sessionHandler.History)

		apiV1.GET("/properties/:bbl", propertyHandler.Summary)
	}

	// Serve the browser UI when a static directory is configured
	setupStaticFiles(router, cfg.Server.StaticDir)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
