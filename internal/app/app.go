package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	emailadapter "github.com/velomarket/listing-engine/internal/adapter/email"
	mongoadapter "github.com/velomarket/listing-engine/internal/adapter/mongo"
	natsadapter "github.com/velomarket/listing-engine/internal/adapter/nats"
	redisadapter "github.com/velomarket/listing-engine/internal/adapter/redis"
	"github.com/velomarket/listing-engine/internal/app/config"
	"github.com/velomarket/listing-engine/internal/notifier"
	"github.com/velomarket/listing-engine/internal/platform/lock"
	"github.com/velomarket/listing-engine/internal/platform/logger"
	"github.com/velomarket/listing-engine/internal/platform/metrics"
	"github.com/velomarket/listing-engine/internal/service"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// App wires the storage adapters, the notification pipeline and the
// services, and owns the lifecycle of the expiration sweep.
type App struct {
	cfg *config.Config
	log logger.Logger

	Ledger       service.LedgerService
	Listings     service.ListingService
	Promotions   service.PromotionService
	ViewPackages service.ViewPackageService
	Effects      service.EffectsService

	sweep         *service.SweepService
	metricsServer *http.Server

	mongoClient *mongo.Client
	redisClient *redis.Client
	natsConn    *natsgo.Conn
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	logCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Encoding:   cfg.Logger.Encoding,
		TimeFormat: cfg.Logger.TimeFormat,
	}
	appLogger, err := logger.NewZapLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	appLogger.Info("Logger initialized")
	appLogger.Infof("Configuration loaded: Env=%s, sweep interval %s", cfg.Env, cfg.Sweep.Interval)

	appLogger.Info("Initializing MongoDB client...")
	mongoClient, err := mongoadapter.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		appLogger.Errorf("Failed to initialize MongoDB client: %v", err)
		return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
	}
	appLogger.Info("MongoDB client initialized successfully")

	appLogger.Info("Initializing Redis client...")
	redisClient, err := redisadapter.NewClient(ctx, cfg.Redis)
	if err != nil {
		appLogger.Errorf("Failed to initialize Redis client: %v", err)
		return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
	}
	appLogger.Info("Redis client initialized successfully")

	appLogger.Info("Connecting to NATS...")
	natsConn, err := natsadapter.NewConnection(cfg.NATS)
	if err != nil {
		appLogger.Errorf("Failed to connect to NATS: %v", err)
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	msgPublisher, err := natsadapter.NewNATSPublisher(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}
	appLogger.Info("NATS publisher initialized")

	listingRepo := mongoadapter.NewListingRepository(mongoClient, cfg.MongoDB)
	balanceRepo := mongoadapter.NewBalanceRepository(mongoClient, cfg.MongoDB)
	unusedViewsRepo := mongoadapter.NewUnusedViewsRepository(mongoClient, cfg.MongoDB)
	dedup := redisadapter.NewNotificationDedup(redisClient)
	appLogger.Info("Repositories initialized")

	metricsManager := metrics.NewManager("listing_engine")

	sinks := []notifier.Sink{notifier.NewNATSSink(msgPublisher)}
	if cfg.Notifications.OpsEmail != "" {
		sender, err := emailadapter.NewSMTPSender(cfg.SMTP, appLogger)
		if err != nil {
			appLogger.Errorf("Failed to initialize SMTP sender: %v", err)
			return nil, fmt.Errorf("failed to initialize SMTP sender: %w", err)
		}
		// Operations only cares about terminal and near-terminal states.
		sinks = append(sinks, notifier.NewEmailSink(sender, cfg.Notifications.OpsEmail,
			notifier.KindArchived, notifier.KindExpiringSoon))
		appLogger.Infof("Email sink enabled for %s", cfg.Notifications.OpsEmail)
	}
	dispatcher := notifier.NewDispatcher(appLogger, metricsManager, sinks...)

	// One mutex set serializes every mutation of a given listing across
	// all services and the sweep.
	listingLocks := lock.NewKeyedMutex()

	ledgerSvc := service.NewLedgerService(balanceRepo, appLogger)
	listingSvc := service.NewListingService(listingRepo, unusedViewsRepo, listingLocks, msgPublisher, appLogger, cfg.Listing.Lifetime)
	promotionSvc := service.NewPromotionService(listingRepo, ledgerSvc, listingLocks, msgPublisher, dispatcher, appLogger, metricsManager)
	viewPackageSvc := service.NewViewPackageService(listingRepo, ledgerSvc, listingLocks, dispatcher, appLogger, metricsManager)
	effectsSvc := service.NewEffectsService(listingRepo, ledgerSvc, listingLocks, appLogger, metricsManager)
	sweepSvc := service.NewSweepService(listingRepo, unusedViewsRepo, dedup, listingLocks,
		msgPublisher, dispatcher, appLogger, metricsManager, cfg.Sweep.Interval)
	appLogger.Info("Services initialized")

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsManager.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + cfg.Metrics.Port,
		Handler: metricsMux,
	}

	return &App{
		cfg:           cfg,
		log:           appLogger,
		Ledger:        ledgerSvc,
		Listings:      listingSvc,
		Promotions:    promotionSvc,
		ViewPackages:  viewPackageSvc,
		Effects:       effectsSvc,
		sweep:         sweepSvc,
		metricsServer: metricsServer,
		mongoClient:   mongoClient,
		redisClient:   redisClient,
		natsConn:      natsConn,
	}, nil
}

func (a *App) Run() {
	a.log.Info("Starting application components...")

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go a.sweep.Run(sweepCtx)
	a.log.Info("Expiration sweep started in a goroutine")

	go func() {
		a.log.Infof("Metrics server listening on %s", a.metricsServer.Addr)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Errorf("Metrics server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit
	a.log.Infof("Received shutdown signal: %v. Shutting down application...", receivedSignal)

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Metrics.TimeoutGraceful+5*time.Second)
	defer cancel()

	if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("Error during metrics server graceful shutdown: %v", err)
	} else {
		a.log.Info("Metrics server stopped successfully")
	}

	a.log.Info("Closing connections...")

	if a.natsConn != nil {
		a.natsConn.Close()
		a.log.Info("NATS connection closed")
	}

	if a.mongoClient != nil {
		if err := a.mongoClient.Disconnect(shutdownCtx); err != nil {
			a.log.Errorf("Error disconnecting from MongoDB: %v", err)
		} else {
			a.log.Info("MongoDB connection closed successfully")
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Errorf("Error closing Redis client: %v", err)
		} else {
			a.log.Info("Redis client closed successfully")
		}
	}

	a.log.Info("Application shut down successfully")
}
