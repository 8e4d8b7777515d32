package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/types"
)

// setupClient starts a NATS container and returns a connected client
func setupClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	natsContainer, err := natscontainer.Run(ctx, "nats:2.9-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := natsContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	})

	natsURL, err := natsContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}

	client, err := New(natsURL, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestNATSClient_Integration_CheckRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupClient(t)

	received := make(chan *types.CheckRequest, 1)
	if err := client.SubscribeCheckRequests(func(req *types.CheckRequest) {
		received <- req
	}); err != nil {
		t.Fatalf("SubscribeCheckRequests() failed: %v", err)
	}

	req := &types.CheckRequest{ID: "r-1", VesselID: "v-1", RequestedAt: time.Now().UTC()}
	if err := client.PublishCheckRequest(req); err != nil {
		t.Fatalf("PublishCheckRequest() failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != "r-1" || got.VesselID != "v-1" {
			t.Errorf("Unexpected request: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for check request")
	}
}

func TestNATSClient_Integration_EventStream(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupClient(t)

	type event struct {
		subject string
		data    []byte
	}
	events := make(chan event, 4)
	if err := client.SubscribeEvents(func(subject string, data []byte) {
		events <- event{subject, data}
	}); err != nil {
		t.Fatalf("SubscribeEvents() failed: %v", err)
	}

	if err := client.PublishPositionCheck(&types.PositionCheck{ID: "c-1", VesselID: "v-1"}); err != nil {
		t.Fatalf("PublishPositionCheck() failed: %v", err)
	}
	if err := client.PublishSeaTimeEntry(&types.SeaTimeEntry{ID: "e-1", Status: types.EntryStatusPending}); err != nil {
		t.Fatalf("PublishSeaTimeEntry() failed: %v", err)
	}

	seen := make(map[string]bool)
	for len(seen) < 2 {
		select {
		case ev := <-events:
			seen[ev.subject] = true
			if ev.subject == SubjectEntryCreated {
				var entry types.SeaTimeEntry
				if err := json.Unmarshal(ev.data, &entry); err != nil || entry.ID != "e-1" {
					t.Errorf("Unexpected entry payload %s: %v", ev.data, err)
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for events, saw %v", seen)
		}
	}
	if !seen[SubjectCheckRecorded] || !seen[SubjectEntryCreated] {
		t.Errorf("Expected both subjects, saw %v", seen)
	}
}
