package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	_ "github.com/healthapp/identity-service/docs" // Swagger docs (generated)
	"github.com/healthapp/identity-service/internal/auth"
	"github.com/healthapp/identity-service/internal/config"
	"github.com/healthapp/identity-service/internal/database"
	"github.com/healthapp/identity-service/internal/email"
	httpServer "github.com/healthapp/identity-service/internal/http"
	"github.com/healthapp/identity-service/internal/logging"
	"github.com/healthapp/identity-service/internal/storage"
)

// @title           HealthApp Identity API
// @version         1.0
// @description     Registration, email verification, login and password reset for HealthApp patients and doctors.

// @contact.name   API Support
// @contact.email  support@healthapp.local

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "identity-service",
		Short: "HealthApp identity and authentication service",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().Bool("migrate", false, "Apply pending migrations before serving (postgres only)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}

	createAdminCmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified ADMIN account (postgres only)",
		RunE:  runCreateAdmin,
	}
	createAdminCmd.Flags().String("email", "", "Admin email")
	createAdminCmd.Flags().String("password", "", "Admin password (defaults to $ADMIN_PASSWORD)")
	_ = createAdminCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(serveCmd, migrateCmd, createAdminCmd)

	// Allow running without subcommand (default to serve)
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	return rootCmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	ctx := cmd.Context()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return database.Migrate(ctx, db, logger)
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	adminEmail, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("ADMIN_PASSWORD")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("create-admin requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	ctx := cmd.Context()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	return createAdmin(ctx, storage.NewPostgresStore(db), cfg, logger, adminEmail, password)
}

// createAdmin provisions the account. No email is sent; admins start verified.
func createAdmin(ctx context.Context, store storage.Store, cfg *config.Config, logger *logging.Logger, adminEmail, password string) error {
	sessions, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	service := auth.NewService(
		store,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		auth.NewTokenManager(),
		sessions,
		email.NewDispatcher(email.NewMemoryQueue(1), email.NewService(cfg.Email, logger), logger, 1),
		logger,
	)

	admin, err := service.CreateAdmin(ctx, adminEmail, password)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	logger.Info("admin ready", "user_id", admin.ID.String(), "email", admin.Email)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	autoMigrate, _ := cmd.Flags().GetBool("migrate")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"store", cfg.Database.Driver,
		"email_queue", cfg.Email.Queue,
	)

	ctx := cmd.Context()

	// Initialize storage
	var store storage.Store
	switch cfg.Database.Driver {
	case config.StoreDriverPostgres:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		if autoMigrate {
			if err := database.Migrate(ctx, db, logger); err != nil {
				return err
			}
		}
		store = storage.NewPostgresStore(db)
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		store = storage.NewMemoryStore()
	}

	// Initialize email delivery
	var queue email.Queue
	switch cfg.Email.Queue {
	case config.EmailQueueRedis:
		redisClient, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()
		queue = email.NewRedisQueue(redisClient, email.DefaultRedisQueueKey)
	default:
		queue = email.NewMemoryQueue(cfg.Email.QueueSize)
	}

	emailService := email.NewService(cfg.Email, logger)
	dispatcher := email.NewDispatcher(queue, emailService, logger, cfg.Email.Workers,
		email.WithBufferSize(cfg.Email.QueueSize),
	)
	dispatcher.Start()

	// Initialize auth
	sessions, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	authService := auth.NewService(
		store,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		auth.NewTokenManager(),
		sessions,
		dispatcher,
		logger,
	)

	// Initialize HTTP handlers
	authHandler := auth.NewHandler(authService, logger)
	authMiddleware := auth.NewMiddleware(authService)

	// Initialize router
	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger)

	// Initialize HTTP server
	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn("email dispatcher did not drain", "error", err.Error())
		}
	}

	return nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
