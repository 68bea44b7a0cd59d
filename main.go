package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"churnpredict/config"
	"churnpredict/db"
	qhttp "churnpredict/http"
	"churnpredict/logging"
	"churnpredict/ml"
	"churnpredict/monitoring"
	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Database initialized", zap.String("path", cfg.Database.Path))

	// 3. Load model
	predictor := ml.NewPredictor(cfg.Model.Path,
		ml.WithLogger(logger),
		ml.WithCacheSize(cfg.Model.CacheSize),
	)
	logger.Info("Predictor ready", zap.Bool("model_loaded", predictor.Ready()))

	monitor := monitoring.NewAPIMonitor(logger)
	hub := monitoring.NewHub(logger, cfg.Server.AllowedOrigins)
	go hub.Run(ctx)

	if cfg.Model.Watch {
		watcher, err := ml.NewArtifactWatcher(predictor, logger)
		if err != nil {
			logger.Fatal("Failed to watch model directory", zap.Error(err))
		}
		defer watcher.Close()
		watcher.OnReload = func(artifact *ml.ModelArtifact, generation uint64) {
			monitor.SetModelState(true, generation)
			err := hub.PublishModel(monitoring.ModelMessage{
				Generation: generation,
				Accuracy:   artifact.Accuracy,
				Source:     "watcher",
			})
			if err != nil {
				logger.Warn("Failed to publish model event", zap.Error(err))
			}
		}
		go watcher.Run(ctx)
	}

	// 4. Start HTTP server
	server := qhttp.NewServer(cfg.Server, qhttp.Deps{
		Predictor: predictor,
		Store:     store,
		Monitor:   monitor,
		Hub:       hub,
		Logger:    logger,
		Training:  cfg.Training,
		ModelPath: cfg.Model.Path,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
		logger.Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	if err := server.Stop(context.Background()); err != nil {
		logger.Warn("Server forced to shutdown", zap.Error(err))
	}
	hub.Stop()

	logger.Info("Exiting")
}
