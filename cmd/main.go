package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/sbilibin2017/gw-wallet-transfer/internal/eventbus"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/faults"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/handlers"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/jwt"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/logger"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/middlewares"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/repositories"
	"github.com/sbilibin2017/gw-wallet-transfer/internal/services"

	_ "github.com/jackc/pgx/v5/stdlib"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// config carries everything parseConfig reads from the environment.
type config struct {
	appHost  string
	appPort  string
	logLevel string

	pgHost         string
	pgPort         int
	pgUser         string
	pgPassword     string
	pgDB           string
	pgMaxOpenConns int
	pgMaxIdleConns int

	redisHost         string
	redisPort         int
	redisDB           int
	redisPassword     string
	redisPoolSize     int
	redisMinIdleConns int

	kafkaBroker string
	kafkaTopic  string

	jwtSecretKey string
	jwtExpSecond int

	idempotencyTTLSecond int

	faultsEnabled    bool
	faultsRate       float64
	faultsFailIDs    []uuid.UUID
	faultsMode       string
	faultsDelaySec   int
	productionProfle bool
}

// @title gw-wallet-transfer API
// @version 1.0.0
// @description Microservice for wallet-to-wallet transfers built as a choreographed saga
// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("application stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Starting service version %s, commit %s, build %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// parseConfig loads environment variables from a file and returns the full
// application configuration.
func parseConfig(path string) (cfg config, err error) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}

	// Application config
	cfg.appHost = getEnv("APP_HOST", "localhost")
	cfg.appPort = getEnv("APP_PORT", "8080")
	cfg.logLevel = getEnv("APP_LOG_LEVEL", "info")
	cfg.productionProfle = getEnv("APP_ENV", "development") == "production"

	// PostgreSQL config
	cfg.pgHost = getEnv("POSTGRES_HOST", "localhost")
	cfg.pgUser = getEnv("POSTGRES_USER", "user")
	cfg.pgPassword = getEnv("POSTGRES_PASSWORD", "password")
	cfg.pgDB = getEnv("POSTGRES_DB", "database")
	if cfg.pgPort, err = strconv.Atoi(getEnv("POSTGRES_PORT", "5432")); err != nil {
		return
	}
	if cfg.pgMaxOpenConns, err = strconv.Atoi(getEnv("POSTGRES_MAX_OPEN_CONNS", "16")); err != nil {
		return
	}
	if cfg.pgMaxIdleConns, err = strconv.Atoi(getEnv("POSTGRES_MAX_IDLE_CONNS", "8")); err != nil {
		return
	}

	// Redis config (event transport and idempotency cache)
	cfg.redisHost = getEnv("REDIS_HOST", "localhost")
	if cfg.redisPort, err = strconv.Atoi(getEnv("REDIS_PORT", "6379")); err != nil {
		return
	}
	if cfg.redisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return
	}
	cfg.redisPassword = getEnv("REDIS_PASSWORD", "")
	if cfg.redisPoolSize, err = strconv.Atoi(getEnv("REDIS_POOL_SIZE", "10")); err != nil {
		return
	}
	if cfg.redisMinIdleConns, err = strconv.Atoi(getEnv("REDIS_MIN_IDLE_CONNS", "2")); err != nil {
		return
	}

	// Kafka config (terminal event feed)
	cfg.kafkaBroker = getEnv("KAFKA_BROKER", "localhost:9092")
	cfg.kafkaTopic = getEnv("KAFKA_TOPIC", "wallet-transfer-events")

	// JWT config
	cfg.jwtSecretKey = getEnv("JWT_SECRET_KEY", "my_super_secret_key")
	if cfg.jwtExpSecond, err = strconv.Atoi(getEnv("JWT_EXP_SECOND", "3600")); err != nil {
		return
	}

	// Deposit idempotency cache TTL
	if cfg.idempotencyTTLSecond, err = strconv.Atoi(getEnv("IDEMPOTENCY_TTL_SECOND", "86400")); err != nil {
		return
	}

	// Failure injector config (test/diagnostic profiles only)
	cfg.faultsEnabled = getEnv("FAULTS_ENABLED", "false") == "true"
	if cfg.faultsRate, err = strconv.ParseFloat(getEnv("FAULTS_RATE", "0"), 64); err != nil {
		return
	}
	cfg.faultsMode = getEnv("FAULTS_MODE", "error")
	if cfg.faultsDelaySec, err = strconv.Atoi(getEnv("FAULTS_DELAY_SECOND", "30")); err != nil {
		return
	}
	for _, raw := range strings.Split(getEnv("FAULTS_FAIL_TRANSACTION_IDS", ""), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		var id uuid.UUID
		if id, err = uuid.Parse(raw); err != nil {
			return
		}
		cfg.faultsFailIDs = append(cfg.faultsFailIDs, id)
	}

	return
}

// run initializes the logger, database, Redis, Kafka, the event channel
// and all services, sets up routes, and handles graceful shutdown.
func run(ctx context.Context, cfg config) error {
	// Initialize logger
	if err := logger.Initialize(cfg.logLevel); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.logLevel)

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.pgUser, cfg.pgPassword, cfg.pgHost, cfg.pgPort, cfg.pgDB)
	logger.Log.Infof("Connecting to PostgreSQL: %s", dsn)

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		logger.Log.Fatal("PostgreSQL connection error:", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.pgMaxOpenConns)
	db.SetMaxIdleConns(cfg.pgMaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		logger.Log.Fatal("PostgreSQL ping failed:", err)
	}

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.redisHost, cfg.redisPort),
		Password:     cfg.redisPassword,
		DB:           cfg.redisDB,
		PoolSize:     cfg.redisPoolSize,
		MinIdleConns: cfg.redisMinIdleConns,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Redis connection error:", err)
	}
	defer rdb.Close()

	// Kafka writer for the terminal event feed
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.kafkaBroker),
		Topic:    cfg.kafkaTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()

	// Event channel over Redis pub/sub
	channel := eventbus.New(eventbus.NewRedisTransport(rdb))
	if err := channel.Connect(ctx); err != nil {
		logger.Log.Fatal("Event channel connection error:", err)
	}
	defer channel.Disconnect()

	// Initialize JWT service
	jwtSvc := jwt.New(cfg.jwtSecretKey, time.Duration(cfg.jwtExpSecond)*time.Second)

	// Initialize repositories
	userReadRepo := repositories.NewUserReadRepository(db)
	userWriteRepo := repositories.NewUserWriteRepository(db)
	walletReadRepo := repositories.NewWalletReadRepository(db)
	walletWriteRepo := repositories.NewWalletWriteRepository(db)
	opReadRepo := repositories.NewLedgerOperationReadRepository(db)
	opWriteRepo := repositories.NewLedgerOperationWriteRepository(db)
	txnReadRepo := repositories.NewTransactionReadRepository(db)
	txnWriteRepo := repositories.NewTransactionWriteRepository(db)

	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return repositories.InTransaction(ctx, db, fn)
	}

	// Failure injector (inert in production)
	injector := faults.New(faults.Config{
		Enabled:            cfg.faultsEnabled,
		Rate:               cfg.faultsRate,
		FailTransactionIDs: cfg.faultsFailIDs,
		Mode:               faults.Mode(cfg.faultsMode),
		Delay:              time.Duration(cfg.faultsDelaySec) * time.Second,
		Production:         cfg.productionProfle,
	})

	// Initialize services
	authService := services.NewAuthService(txRunner, userReadRepo, userWriteRepo, walletWriteRepo, jwtSvc)
	ledgerService := services.NewLedgerService(txRunner, walletReadRepo, walletWriteRepo, opReadRepo, opWriteRepo, txnReadRepo, channel, injector)
	sagaService := services.NewSagaService(txnReadRepo, txnWriteRepo, channel)
	feedService := services.NewFeedService(kafkaWriter)

	// Register choreography handlers. The saga's state handlers go first
	// so a transaction is already advanced when the next ledger trigger
	// fires on the same event.
	if err := sagaService.RegisterHandlers(ctx, channel); err != nil {
		logger.Log.Fatal("Failed to register saga handlers:", err)
	}
	if err := ledgerService.RegisterHandlers(ctx, channel); err != nil {
		logger.Log.Fatal("Failed to register ledger handlers:", err)
	}
	if err := feedService.RegisterHandlers(ctx, channel); err != nil {
		logger.Log.Fatal("Failed to register feed handlers:", err)
	}

	// Initialize handlers
	registerHandler := handlers.NewRegisterHandler(authService)
	loginHandler := handlers.NewLoginHandler(authService)
	balanceHandler := handlers.NewBalanceHandler(jwtSvc, walletReadRepo)
	depositHandler := handlers.NewDepositHandler(jwtSvc, ledgerService)
	transferHandler := handlers.NewTransferHandler(jwtSvc, sagaService)
	transactionHandler := handlers.NewTransactionHandler(jwtSvc, sagaService)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middlewares.LoggingMiddleware(logger.Log))

	// Public routes
	r.Post("/register", registerHandler)
	r.Post("/login", loginHandler)

	// Protected routes with JWT middleware
	authMiddleware := middlewares.AuthMiddleware(jwtSvc)
	idempotencyMiddleware := middlewares.IdempotencyMiddleware(rdb, time.Duration(cfg.idempotencyTTLSecond)*time.Second)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/balance", balanceHandler)
		r.With(idempotencyMiddleware).Post("/wallet/deposit", depositHandler)
		r.Post("/transfer", transferHandler)
		r.Get("/transactions/{id}", transactionHandler)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://%s:%s/swagger/doc.json", cfg.appHost, cfg.appPort)),
	))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.appHost, cfg.appPort),
		Handler: r,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logger.Log.Infof("HTTP server listening on %s:%s", cfg.appHost, cfg.appPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctxShutdown.Done():
		logger.Log.Info("Shutdown signal received, stopping HTTP server...")
	case serveErr := <-errChan:
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP server shutdown error", "error", err)
	}

	logger.Log.Info("HTTP server stopped gracefully")
	return nil
}
