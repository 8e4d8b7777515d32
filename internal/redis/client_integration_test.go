package redis

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/seatime-logger/internal/types"
)

func TestClient_Integration_LatestPosition(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}()

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client, err := New(addr)
	if err != nil {
		t.Fatalf("Failed to create Redis client: %v", err)
	}
	defer client.Close()

	check := &types.PositionCheck{
		ID:        "c-1",
		VesselID:  "v-1",
		CheckTime: time.Now().UTC().Truncate(time.Second),
		Source:    types.CheckSourceManual,
	}
	if err := client.StoreLatestPosition(ctx, check); err != nil {
		t.Fatalf("StoreLatestPosition() failed: %v", err)
	}

	got, err := client.GetLatestPosition(ctx, "v-1")
	if err != nil {
		t.Fatalf("GetLatestPosition() failed: %v", err)
	}
	if got == nil || got.ID != "c-1" {
		t.Errorf("Expected cached check c-1, got %+v", got)
	}

	if err := client.SetPollFailure(ctx, &types.PollFailure{VesselID: "v-1", Kind: "not_found"}); err != nil {
		t.Fatalf("SetPollFailure() failed: %v", err)
	}
	if err := client.ClearPollFailure(ctx, "v-1"); err != nil {
		t.Fatalf("ClearPollFailure() failed: %v", err)
	}
	failure, err := client.GetPollFailure(ctx, "v-1")
	if err != nil {
		t.Fatalf("GetPollFailure() failed: %v", err)
	}
	if failure != nil {
		t.Errorf("Expected failure marker cleared, got %+v", failure)
	}
}
