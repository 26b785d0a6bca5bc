package main

import (
	"context"
	"fmt"
	"log"
	"time"

	channels "github.com/TheAlpha16/channels-go"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Create a bus with a Valkey transport
	bus, err := channels.NewWithValkeyAddress("localhost:6379", valkey.ClientOption{}, channels.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create bus: %v", err)
	}
	defer bus.Shutdown()

	ctx := context.Background()
	if err := bus.Start(ctx); err != nil {
		log.Fatalf("Failed to start bus: %v", err)
	}

	// Wait for the pub/sub connection
	for bus.State() != channels.Connected {
		time.Sleep(50 * time.Millisecond)
	}

	scores, err := channels.OpenChannel(bus, "scores", channels.Int())
	if err != nil {
		log.Fatalf("Failed to open channel: %v", err)
	}

	sub, err := scores.Subscribe(ctx, func(ctx context.Context, score int64) error {
		fmt.Printf("Received score %d\n", score)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe(ctx)

	fmt.Println("Bus started! Listening on channel scores...")

	if err := scores.Publish(ctx, 42); err != nil {
		log.Printf("Failed to publish score: %v", err)
	}

	// Keep the program running for a bit to see the result
	time.Sleep(2 * time.Second)
	fmt.Println("Quick start example completed!")
}
