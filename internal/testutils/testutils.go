package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/seatime-logger/internal/types"
)

// MockVessel creates an inactive vessel owned by userID
func MockVessel(id, userID, mmsi string) *types.Vessel {
	now := time.Now().UTC()
	return &types.Vessel{
		ID:        id,
		UserID:    userID,
		MMSI:      mmsi,
		Name:      "Test Vessel " + id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MockPositionCheck creates a scheduled check with a fix
func MockPositionCheck(vesselID string, at time.Time, lat, lon float64) types.PositionCheck {
	return types.PositionCheck{
		ID:        fmt.Sprintf("%s-%d", vesselID, at.Unix()),
		VesselID:  vesselID,
		CheckTime: at,
		Latitude:  &lat,
		Longitude: &lon,
		Source:    types.CheckSourceScheduled,
		CreatedAt: at,
	}
}

// MockProviderBody renders a provider vessel response
func MockProviderBody(mmsi string, lat, lon, speed float64, received time.Time) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"status": "success",
		"data": map[string]interface{}{
			"vessel_name": "TEST VESSEL",
			"mmsi":        mmsi,
			"lat":         lat,
			"lng":         lon,
			"speed":       speed,
			"received":    received.UTC().Format(time.RFC3339),
		},
	})
	return body
}

// MockProvider serves body for every vessel request and counts calls
type MockProvider struct {
	*httptest.Server
	Calls  atomic.Int64
	Status atomic.Int64
}

// NewMockProvider starts a provider stub returning body with status 200
func NewMockProvider(t *testing.T, body func(mmsi string) []byte) *MockProvider {
	t.Helper()
	p := &MockProvider{}
	p.Status.Store(http.StatusOK)
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Calls.Add(1)
		status := int(p.Status.Load())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write(body(r.URL.Query().Get("mmsi")))
		}
	}))
	t.Cleanup(p.Close)
	return p
}

// StartPostgres runs a postgres container and returns its connection string
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:14-alpine",
		postgres.WithDatabase("seatime"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL connection string: %v", err)
	}
	return connStr
}

// StartNATS runs a JetStream enabled NATS container and returns its URL
func StartNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := natscontainer.Run(ctx, "nats:2.9-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}
	return url
}

// StartRedis runs a redis container and returns its host:port address
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rediscontainer.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}
	return addr
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
