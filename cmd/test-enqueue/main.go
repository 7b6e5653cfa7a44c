package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/services/queue"
	"github.com/jwebster45206/quest-engine/pkg/condition"
	"github.com/jwebster45206/quest-engine/pkg/eventbus"
	queuePkg "github.com/jwebster45206/quest-engine/pkg/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	sessionID := uuid.MustParse(cfg.SessionID)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	// Connect to Redis
	client, err := queue.NewClient(cfg.RedisURL, logger)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	ctx := context.Background()
	q := queue.NewEventQueue(client, logger)

	fmt.Println("Connected to Redis successfully!")

	start := queuePkg.NewQuestRequest(queuePkg.RequestTypeStartQuest, sessionID, "escape_cellar")
	if err := q.Enqueue(ctx, start); err != nil {
		log.Fatal("Failed to enqueue request:", err)
	}
	fmt.Printf("✅ Enqueued start_quest request: %s\n", start.RequestID)

	events := []eventbus.Event{
		condition.ItemCollected{ItemID: "rusty_key", Amount: 2},
		condition.ItemCollected{ItemID: "rusty_key", Amount: 1},
		condition.FlagChanged{FlagID: "alt_key_used", Value: true},
		condition.AreaEntered{AreaID: "courtyard"},
	}
	for _, ev := range events {
		req, err := queuePkg.NewEventRequest(sessionID, ev)
		if err != nil {
			log.Fatal("Failed to build request:", err)
		}
		if err := q.Enqueue(ctx, req); err != nil {
			log.Fatal("Failed to enqueue request:", err)
		}
		fmt.Printf("✅ Enqueued %s event: %s\n", ev.Kind(), req.RequestID)
	}

	// Check queue depth
	depth, err := q.Depth(ctx, sessionID)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\n📊 Queue depth: %d requests\n", depth)
	fmt.Println("\n💡 Now start the worker for this session to see it process these requests!")
	fmt.Printf("   Run: SESSION_ID=%s go run ./cmd/worker\n", sessionID)
}
