package ais

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/metrics"
	"github.com/saviobatista/seatime-logger/internal/types"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []*types.APICallLog
	err     error
}

func (r *recordingAudit) Record(_ context.Context, entry *types.APICallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *recordingAudit) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	audit := &recordingAudit{}
	opts = append([]Option{WithAuditLogger(audit)}, opts...)
	client := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    "abcd1234efgh5678",
		Extended:  true,
		Timeout:   2 * time.Second,
		RateLimit: 1000,
	}, logger.NewNop(), opts...)
	return client, audit
}

func TestFetchPosition_Success(t *testing.T) {
	client, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/vessel" {
			t.Errorf("Expected path /vessel, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("mmsi"); got != "235000001" {
			t.Errorf("Expected mmsi query 235000001, got %s", got)
		}
		if got := r.URL.Query().Get("extended"); got != "true" {
			t.Errorf("Expected extended=true, got %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer abcd1234efgh5678" {
			t.Errorf("Expected bearer token, got %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"vessel_name":"SEA BREEZE","lat":50.1,"lon":-1.2,"speed":8.4,"received":"2024-06-01T10:00:00Z"}}`))
	})

	pos, err := client.FetchPosition(context.Background(), "235000001")
	if err != nil {
		t.Fatalf("FetchPosition() error = %v", err)
	}
	if pos.Name != "SEA BREEZE" {
		t.Errorf("Expected name SEA BREEZE, got %s", pos.Name)
	}
	if pos.MMSI != "235000001" {
		t.Errorf("Expected MMSI to default to the requested one, got %s", pos.MMSI)
	}
	if !pos.IsMoving {
		t.Error("Expected vessel at 8.4 knots to be moving")
	}

	if len(audit.entries) != 1 {
		t.Fatalf("Expected 1 audit entry, got %d", len(audit.entries))
	}
	entry := audit.entries[0]
	if entry.Outcome != "success" {
		t.Errorf("Expected outcome success, got %s", entry.Outcome)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", entry.StatusCode)
	}
	if entry.APIKey != "abcd****5678" {
		t.Errorf("Expected masked key, got %s", entry.APIKey)
	}
	if !entry.Extended {
		t.Error("Expected extended flag in audit entry")
	}
}

func TestFetchPosition_FailureTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind FailureKind
		sentinel error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: KindUnauthorized, sentinel: ErrUnauthorized},
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: KindRateLimited, sentinel: ErrRateLimited},
		{name: "not found", status: http.StatusNotFound, wantKind: KindNotFound, sentinel: ErrNotFound},
		{name: "server error", status: http.StatusBadGateway, wantKind: KindUnavailable, sentinel: ErrUnavailable},
		{name: "bad request", status: http.StatusBadRequest, wantKind: KindUnavailable, sentinel: ErrUnavailable},
		{name: "garbage body", status: http.StatusOK, body: "<html>", wantKind: KindInvalidResponse, sentinel: ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			pos, err := client.FetchPosition(context.Background(), "235000001")
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if pos != nil {
				t.Error("Expected nil position on failure")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, got)
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Expected errors.Is(err, %v) to be true", tt.sentinel)
			}

			var perr *ProviderError
			if errors.As(err, &perr) && perr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, perr.StatusCode)
			}

			if len(audit.entries) != 1 {
				t.Fatalf("Expected 1 audit entry, got %d", len(audit.entries))
			}
			if audit.entries[0].Outcome != string(tt.wantKind) {
				t.Errorf("Expected audit outcome %s, got %s", tt.wantKind, audit.entries[0].Outcome)
			}
			if audit.entries[0].ErrorMessage == "" {
				t.Error("Expected audit error message")
			}
		})
	}
}

func TestFetchPosition_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Config{BaseURL: url, APIKey: "key", RateLimit: 1000}, logger.NewNop())

	_, err := client.FetchPosition(context.Background(), "235000001")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Expected transport error, got %v", err)
	}
}

func TestFetchPosition_BreakerOpensOnTransientFailures(t *testing.T) {
	var calls int
	var mu sync.Mutex
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	for i := 0; i < breakerTrips; i++ {
		if _, err := client.FetchPosition(context.Background(), "235000001"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("Expected unavailable on attempt %d, got %v", i, err)
		}
	}

	if client.State() != gobreaker.StateOpen {
		t.Fatalf("Expected breaker to be open, got %s", client.State())
	}

	_, err := client.FetchPosition(context.Background(), "235000001")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected unavailable from open breaker, got %v", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected wrapped ErrOpenState, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != breakerTrips {
		t.Errorf("Expected %d provider calls, got %d", breakerTrips, calls)
	}
}

func TestFetchPosition_NotFoundDoesNotTripBreaker(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < breakerTrips+2; i++ {
		if _, err := client.FetchPosition(context.Background(), "235000001"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Expected not found on attempt %d, got %v", i, err)
		}
	}

	if client.State() != gobreaker.StateClosed {
		t.Errorf("Expected breaker to stay closed, got %s", client.State())
	}
}

func TestFetchPosition_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchPosition(ctx, "235000001")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("Expected transport error for cancelled context, got %v", err)
	}
}

func TestFetchPosition_CallerDeadlineDoesNotTripBreaker(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
		_, _ = w.Write([]byte(`{"mmsi":"235000001","latitude":1,"longitude":2}`))
	})

	for i := 0; i < breakerTrips+1; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := client.FetchPosition(ctx, "235000001")
		cancel()
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("Expected transport error on attempt %d, got %v", i, err)
		}
		if !aborted(err) {
			t.Fatalf("Expected attempt %d to be marked aborted, got %v", i, err)
		}
	}

	if client.State() != gobreaker.StateClosed {
		t.Fatalf("Expected breaker to stay closed, got %s", client.State())
	}
	if _, err := client.FetchPosition(context.Background(), "235000001"); err != nil {
		t.Errorf("Expected healthy provider to answer, got %v", err)
	}
}

func TestFetchPosition_ProviderTimeoutTripsBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    "key",
		Timeout:   20 * time.Millisecond,
		RateLimit: 1000,
	}, logger.NewNop())

	for i := 0; i < breakerTrips; i++ {
		_, err := client.FetchPosition(context.Background(), "235000001")
		if !errors.Is(err, ErrTransport) || aborted(err) {
			t.Fatalf("Expected non-aborted transport error on attempt %d, got %v", i, err)
		}
	}

	if client.State() != gobreaker.StateOpen {
		t.Errorf("Expected breaker to open on provider timeouts, got %s", client.State())
	}
}

func TestFetchPosition_RateLimitWaitIsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"mmsi":"235000001","latitude":1,"longitude":2}`))
	}))
	t.Cleanup(server.Close)

	audit := &recordingAudit{}
	client := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    "key",
		RateLimit: 0.001,
	}, logger.NewNop(), WithAuditLogger(audit), WithMetrics(m))

	if _, err := client.FetchPosition(context.Background(), "235000001"); err != nil {
		t.Fatalf("Expected first call to use the burst token, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.FetchPosition(ctx, "235000001")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected transport error from limiter, got %v", err)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", len(audit.entries))
	}
	if got := audit.entries[1].Outcome; got != string(KindTransport) {
		t.Errorf("Expected outcome %q, got %q", KindTransport, got)
	}
	if got := testutil.ToFloat64(m.PollsTotal.WithLabelValues(string(KindTransport))); got != 1 {
		t.Errorf("Expected 1 transport poll, got %v", got)
	}
	if client.State() != gobreaker.StateClosed {
		t.Errorf("Expected breaker to stay closed, got %s", client.State())
	}
}

func TestFetchPosition_AuditFailureIsNotFatal(t *testing.T) {
	client, audit := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"mmsi":"235000001","latitude":1,"longitude":2}`))
	})
	audit.err = errors.New("disk full")

	if _, err := client.FetchPosition(context.Background(), "235000001"); err != nil {
		t.Errorf("Expected audit failure to be ignored, got %v", err)
	}
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{Kind: KindRateLimited, StatusCode: 429, MMSI: "235000001", Err: errors.New("slow down")}
	expected := "ais provider rate_limited for mmsi 235000001 (status 429): slow down"
	if err.Error() != expected {
		t.Errorf("Expected %q, got %q", expected, err.Error())
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("Expected empty kind for non-provider error")
	}
}
