package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/reqflow/requisition-service/internal/application/dispatcher"
	"github.com/reqflow/requisition-service/internal/application/service"
	"github.com/reqflow/requisition-service/internal/application/workflow"
	"github.com/reqflow/requisition-service/internal/config"
	"github.com/reqflow/requisition-service/internal/domain/event"
	"github.com/reqflow/requisition-service/internal/infrastructure/persistence/repository"
	"github.com/reqflow/requisition-service/internal/infrastructure/persistence/sqlite"
	"github.com/reqflow/requisition-service/internal/infrastructure/worker"
	httpadapter "github.com/reqflow/requisition-service/internal/interfaces/http"
	"github.com/reqflow/requisition-service/pkg/database"
	"github.com/reqflow/requisition-service/pkg/utils"
)

func main() {
	// Best effort; a missing .env file is fine.
	_ = gotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting requisition service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create database directory", zap.Error(err))
		}
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(sqlite.Migrations()); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	kv := utils.NewKVLogger(logger)
	txManager := sqlite.NewDB(db.DB, logger)

	// Repositories
	requisitionRepo := repository.NewRequisitionRepository(db.DB, logger)
	stepRepo := repository.NewStepRepository(db.DB, logger)
	ruleRepo := repository.NewRuleRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Application services
	requisitionSvc := service.NewRequisitionService(
		requisitionRepo, auditRepo, txManager,
		cfg.Workflow.VarianceThresholdDecimal(), kv)
	stepSvc := service.NewStepService(stepRepo, auditRepo, txManager, kv)
	ruleSvc := service.NewRuleService(ruleRepo, kv)
	auditSvc := service.NewAuditService(auditRepo, kv)

	// Event dispatcher for the external notification boundary. Until a
	// downstream consumer is wired, lifecycle events land in the log.
	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(kv))
	registerEventLogging(disp, logger)

	engine := workflow.NewEngine(requisitionSvc, stepSvc, ruleSvc, txManager, disp, kv)

	// Background workers
	workers := worker.NewManager(logger)
	workers.Register(worker.NewReminderSweep(worker.ReminderSweepConfig{
		Interval:     cfg.Workflow.ReminderInterval,
		StaleStepAge: cfg.Workflow.StaleStepAge,
		BatchSize:    cfg.Workflow.ReminderBatchSize,
	}, stepRepo, auditRepo, disp, logger))

	srv := httpadapter.NewServer(httpadapter.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, requisitionSvc, stepSvc, ruleSvc, auditSvc, engine, kv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// Blocks until the context is cancelled or the listener fails.
	if err := srv.Start(ctx); err != nil {
		logger.Error("HTTP server exited with error", zap.Error(err))
	}

	logger.Info("Shutting down")

	if err := workers.StopAll(); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}
	if err := disp.Close(); err != nil {
		logger.Error("Dispatcher shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// registerEventLogging subscribes a logging handler for every lifecycle
// event type
func registerEventLogging(d dispatcher.Dispatcher, logger *zap.Logger) {
	types := []event.Type{
		event.TypeSubmitted,
		event.TypeApproved,
		event.TypeRejected,
		event.TypePaid,
		event.TypeStepReminder,
	}
	for _, t := range types {
		d.SubscribeNamed(t, "event-log", func(ctx context.Context, evt *event.Event) error {
			logger.Info("Lifecycle event",
				zap.String("event_id", evt.ID),
				zap.String("type", evt.Type.String()),
				zap.Int64("requisition_id", evt.RequisitionID),
				zap.Any("payload", evt.Payload))
			return nil
		})
	}
}
