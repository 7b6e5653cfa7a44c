package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/internal/services/events"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)
	sessionID := uuid.MustParse(cfg.SessionID)

	log.Info("Starting Quest Engine Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"quest_dir", cfg.QuestDir)

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	eventQueue := queue.NewEventQueue(queueClient, log)
	log.Info("Queue service initialized successfully")

	// Initialize storage service
	storageService, err := storage.NewRedisStorage(cfg.RedisURL, cfg.QuestDir, cfg.SnapshotTTL, log)
	if err != nil {
		log.Error("Failed to create storage", "error", err)
		os.Exit(1)
	}
	defer storageService.Close()

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := storageService.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}

	quests, err := storageService.ListQuests(storageCtx)
	if err != nil {
		log.Error("Failed to list quests", "error", err)
		os.Exit(1)
	}
	log.Info("Storage service initialized successfully", "quests", len(quests))

	w := worker.New(worker.Options{
		ID:           cfg.WorkerID,
		SessionID:    sessionID,
		Queue:        eventQueue,
		Storage:      storageService,
		RedisClient:  queueClient.GetRedisClient(),
		Broadcaster:  events.NewBroadcaster(queueClient.GetRedisClient(), sessionID, log),
		TickInterval: cfg.TickInterval,
		Logger:       log,
	})

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Worker started, waiting for requests...", "session_id", sessionID.String())
	if err := w.Run(ctx); err != nil {
		if errors.Is(err, worker.ErrSessionLocked) {
			log.Error("Session is already owned by another worker", "session_id", sessionID.String())
		} else {
			log.Error("Worker error", "error", err)
		}
		os.Exit(1)
	}

	log.Info("Worker exited")
}
