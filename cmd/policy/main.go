package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/insurecrm/internal/policy/auth"
	"github.com/gartstein/insurecrm/internal/policy/config"
	"github.com/gartstein/insurecrm/internal/policy/controller"
	"github.com/gartstein/insurecrm/internal/policy/db"
	"github.com/gartstein/insurecrm/internal/policy/events"
	"github.com/gartstein/insurecrm/internal/policy/handlers"
	"github.com/gartstein/insurecrm/internal/policy/reminder"
	"github.com/gartstein/insurecrm/internal/policy/tracing"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const serviceName = "insurecrm-policy"

type eventProducer interface {
	Produce(event events.Event)
	Close()
}

type notifier interface {
	reminder.Notifier
	Close()
}

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		err := logger.Sync()
		if err != nil {
			logger.Error("failed to sync logger", zap.Error(err))
		}
	}(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.Path())
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	shutdownTracing, err := tracing.Init(ctx, logger, serviceName, cfg.Environment)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to shut down tracing", zap.Error(err))
		}
	}()

	repo, err := connectDatabase(ctx, initDatabase(cfg), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	if cfg.SeedDemo {
		if err := repo.Seed(ctx); err != nil {
			logger.Fatal("failed to seed demo data", zap.Error(err))
		}
		logger.Info("demo data seeded")
	}

	producer, notify := initMessaging(cfg, logger)
	defer producer.Close()
	defer notify.Close()

	clock := clockwork.NewRealClock()
	claimer := initClaimer(ctx, cfg, clock, logger)

	sweeper := reminder.NewSweeper(repo, notify, claimer, producer, clock, logger, reminder.SweeperConfig{
		HorizonDays: cfg.ReminderHorizonDays,
	})
	triggers, err := initTriggers(cfg)
	if err != nil {
		logger.Fatal("invalid reminder schedule", zap.Error(err))
	}
	scheduler := reminder.NewScheduler(sweeper, clock, logger, triggers...)

	policySvc := controller.NewPolicyService(repo, producer, clock, logger)
	salesSvc := controller.NewSalesService(repo, producer, clock, logger)
	catalogSvc := controller.NewCatalogService(repo)

	authz, err := auth.NewAuthorizer()
	if err != nil {
		logger.Fatal("failed to initialize authorizer", zap.Error(err))
	}
	guard := auth.NewGuard(cfg.JWTSecret, repo, authz, logger)

	server := handlers.NewServer(cfg.GRPCPort, cfg.HTTPPort, logger)
	handler := handlers.NewHandler(policySvc, salesSvc, catalogSvc, scheduler, logger)
	if err := server.RegisterHTTPHandler(handler, guard.HTTPMiddleware); err != nil {
		logger.Fatal("Failed to register HTTP handlers", zap.Error(err))
	}

	scheduler.OnStatus(server.SetReminderStatus)
	scheduler.Start(ctx)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start servers", zap.Error(err))
		}
	}()

	waitForShutdown(server, scheduler, logger)
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

// initDatabase maps the service config onto the repository config.
func initDatabase(cfg *config.Config) *db.Config {
	return &db.Config{
		Driver:   cfg.DBDriver,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
		Path:     cfg.DBPath,
	}
}

// connectDatabase retries until the database accepts connections, which
// lets the service start alongside its database container.
func connectDatabase(ctx context.Context, cfg *db.Config, logger *zap.Logger) (*db.Repository, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = time.Minute

	var repo *db.Repository
	err := backoff.RetryNotify(func() error {
		var err error
		repo, err = db.NewRepository(cfg)
		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Warn("database not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	})
	return repo, err
}

// initMessaging publishes to Kafka when brokers are configured and to the
// log otherwise.
func initMessaging(cfg *config.Config, logger *zap.Logger) (eventProducer, notifier) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, events and notifications go to the log")
		return events.NewLogProducer(logger), events.NewLogNotifier(logger)
	}

	producer, err := events.NewProducer(cfg.KafkaBrokers, logger, cfg.EventsTopic)
	if err != nil {
		logger.Fatal("failed to initialize Kafka producer", zap.Error(err))
	}
	notify, err := events.NewKafkaNotifier(cfg.KafkaBrokers, logger, cfg.NotificationsTopic)
	if err != nil {
		logger.Fatal("failed to initialize Kafka notifier", zap.Error(err))
	}
	return producer, notify
}

// initClaimer uses Redis for reminder claims when configured, so several
// replicas can sweep without double notifications.
func initClaimer(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *zap.Logger) reminder.Claimer {
	if cfg.RedisURL == "" {
		return reminder.NewMemoryClaimer(clock)
	}
	client, err := reminder.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, using in-process reminder claims", zap.Error(err))
		return reminder.NewMemoryClaimer(clock)
	}
	return reminder.NewRedisClaimer(client)
}

func initTriggers(cfg *config.Config) ([]reminder.Trigger, error) {
	loc := cfg.Location()
	daily, err := reminder.ParseDaily(cfg.ReminderDailyAt, loc)
	if err != nil {
		return nil, err
	}
	weekly, err := reminder.ParseWeekly(cfg.ReminderWeeklyAt, loc)
	if err != nil {
		return nil, err
	}
	return []reminder.Trigger{
		{Name: "daily", Schedule: daily},
		{Name: "weekly", Schedule: weekly},
	}, nil
}

// waitForShutdown blocks until an interrupt or SIGTERM is received, then
// stops the scheduler, waiting for an in-flight sweep, and the servers.
func waitForShutdown(server *handlers.Server, scheduler *reminder.Scheduler, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	scheduler.Stop()
	server.Stop()
	logger.Info("Servers stopped properly")
}
