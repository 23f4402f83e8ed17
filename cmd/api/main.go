package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/steeldesk/internal/auth"
	"github.com/BradenHooton/steeldesk/internal/background"
	"github.com/BradenHooton/steeldesk/internal/config"
	"github.com/BradenHooton/steeldesk/internal/database"
	"github.com/BradenHooton/steeldesk/internal/handlers"
	"github.com/BradenHooton/steeldesk/internal/lockout"
	"github.com/BradenHooton/steeldesk/internal/metrics"
	middlewareCustom "github.com/BradenHooton/steeldesk/internal/middleware"
	"github.com/BradenHooton/steeldesk/internal/ratelimit"
	"github.com/BradenHooton/steeldesk/internal/repositories"
	"github.com/BradenHooton/steeldesk/internal/routes"
	"github.com/BradenHooton/steeldesk/internal/services"
	pkgauth "github.com/BradenHooton/steeldesk/pkg/auth"
	pkghttp "github.com/BradenHooton/steeldesk/pkg/http"
	pkglogger "github.com/BradenHooton/steeldesk/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repositories.NewUserRepository(db)
	auditLogger := pkglogger.NewAuditLogger(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg)

	// Per-address sign-in throttling
	limiter := ratelimit.NewFixedWindow(ratelimit.Config{
		MaxAttempts: cfg.Auth.SignInMaxAttempts,
		Window:      cfg.Auth.SignInWindow,
	})
	cleanupManager := background.NewCleanupManager(limiter, appMetrics, logger, cfg.Auth.RateLimitSweepInterval)

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	opts := []services.AuthServiceOption{
		services.WithTimingDelay(timingDelay),
		services.WithMetrics(appMetrics),
	}
	if cfg.Email.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		emailService, err := services.NewAWSSESEmailService(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		opts = append(opts, services.WithNotifier(emailService))
	}

	authService, err := services.NewAuthService(userRepo, pkgauth.BcryptVerifier{}, services.AuthServiceConfig{
		Policy: lockout.Policy{
			Threshold: cfg.Auth.LockoutThreshold,
			Duration:  cfg.Auth.LockoutDuration,
		},
		StoreTimeout:    cfg.Auth.StoreTimeout,
		MaxWriteRetries: cfg.Auth.MaxWriteRetries,
	}, logger, auditLogger, opts...)
	if err != nil {
		logger.Error("invalid lockout policy", slog.Any("error", err))
		os.Exit(1)
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)
	cookieConfig := auth.CookieConfig{Secure: cfg.Auth.SessionCookieSecure, SameSite: "lax"}

	// Bootstrap first admin user if configured
	userService := services.NewUserService(userRepo, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userService, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Dependencies{
		SignInHandler:  handlers.NewSignInHandler(authService, tokenManager, cookieConfig, logger),
		AccountHandler: handlers.NewAccountHandler(authService, logger),
		SignInGuard: middlewareCustom.SignInGuard(middlewareCustom.SignInGuardConfig{
			Limiter:   limiter,
			Inspector: authService,
			IPConfig:  &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies},
			Metrics:   appMetrics,
			Logger:    logger,
		}),
		TokenManager: tokenManager,
		UserRepo:     userRepo,
		Health:       handlers.Health(db),
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:       logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userService *services.UserService, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	created, err := userService.EnsureAdmin(ctx, adminEmail, adminPassword, "Admin")
	if err != nil {
		return err
	}

	if created {
		logger.Info("admin user created successfully")
	} else {
		logger.Info("admin user already exists")
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
