package main

import (
	"context"
	"os"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/tablecode/tablecode/internal/audit"
	"github.com/tablecode/tablecode/internal/config"
	"github.com/tablecode/tablecode/internal/credential"
	"github.com/tablecode/tablecode/internal/database"
	"github.com/tablecode/tablecode/internal/hotel"
	"github.com/tablecode/tablecode/internal/lifecycle"
	"github.com/tablecode/tablecode/internal/logging"
	"github.com/tablecode/tablecode/internal/notify"
	"github.com/tablecode/tablecode/internal/queue"
	"github.com/tablecode/tablecode/internal/queue/workers"
	"github.com/tablecode/tablecode/internal/slug"
	"github.com/tablecode/tablecode/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Component: "worker", Level: cfg.App.LogLevel})
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	db, err := database.NewPool(context.Background(), cfg.Database)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	audits := audit.NewStore(db)
	hotels := hotel.NewStore(db, audits)
	objects := storage.NewSupabaseStorage(cfg.Storage.BaseURL, cfg.Storage.ServiceKey)
	lifecycleSvc := lifecycle.NewService(hotels, slug.NewGenerator(hotels, logger),
		credential.NewStore(), objects, logger)
	mailer := &notify.LogMailer{From: cfg.Notify.FromAddress, Logger: logger}

	registry := queue.NewHandlersRegistry()
	otpWorker := workers.NewOTPEmailWorker(mailer, logger)
	purgeWorker := workers.NewPurgeWorker(lifecycleSvc, logger)
	registry.Register(queue.TypeOTPEmail, asynq.HandlerFunc(otpWorker.ProcessTask))
	registry.Register(queue.TypePurgeSweep, asynq.HandlerFunc(purgeWorker.ProcessTask))

	redisOpt := queue.RedisOpt(cfg.Redis)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	})

	// Nightly retention sweep.
	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register("0 3 * * *", asynq.NewTask(queue.TypePurgeSweep, nil), asynq.Queue("low")); err != nil {
		logger.Fatal("register purge schedule failed", zap.Error(err))
	}
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Fatal("scheduler error", zap.Error(err))
		}
	}()

	logger.Info("starting worker", zap.Int("concurrency", 10))
	if err := srv.Run(registry.Mux()); err != nil {
		logger.Fatal("worker error", zap.Error(err))
	}
}
