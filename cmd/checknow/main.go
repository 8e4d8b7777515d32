package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/nats"
	"github.com/saviobatista/seatime-logger/internal/redis"
	"github.com/saviobatista/seatime-logger/internal/types"
)

const (
	defaultTimeout = 45 * time.Second
	pollEvery      = 250 * time.Millisecond
)

// ErrPollFailed is returned when the scheduler reports a failed poll for the request
var ErrPollFailed = errors.New("poll failed")

// RequestPublisher sends manual check requests to the scheduler
type RequestPublisher interface {
	PublishCheckRequest(req *types.CheckRequest) error
}

// ResultReader reads the scheduler's cached poll outcome
type ResultReader interface {
	GetLatestPosition(ctx context.Context, vesselID string) (*types.PositionCheck, error)
	GetPollFailure(ctx context.Context, vesselID string) (*types.PollFailure, error)
}

// Requester asks the scheduler for an immediate check and waits for the outcome
type Requester struct {
	pub       RequestPublisher
	results   ResultReader
	log       logger.Logger
	now       func() time.Time
	newID     func() string
	pollEvery time.Duration
}

// NewRequester creates a Requester
func NewRequester(pub RequestPublisher, results ResultReader, log logger.Logger) *Requester {
	return &Requester{
		pub:       pub,
		results:   results,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
		pollEvery: pollEvery,
	}
}

// Request publishes a check request for vesselID and waits until the cache
// holds a check or a poll failure recorded after the request
func (r *Requester) Request(ctx context.Context, vesselID, requestedBy string) (*types.PositionCheck, error) {
	req := &types.CheckRequest{
		ID:          r.newID(),
		VesselID:    vesselID,
		RequestedBy: requestedBy,
		RequestedAt: r.now().UTC(),
	}
	if err := r.pub.PublishCheckRequest(req); err != nil {
		return nil, err
	}
	r.log.Debug("Check requested", "request_id", req.ID, "vessel_id", vesselID)

	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		check, err := r.results.GetLatestPosition(ctx, vesselID)
		if err != nil {
			return nil, err
		}
		if check != nil && !check.CheckTime.Before(req.RequestedAt) {
			return check, nil
		}

		failure, err := r.results.GetPollFailure(ctx, vesselID)
		if err != nil {
			return nil, err
		}
		if failure != nil && !failure.At.Before(req.RequestedAt) {
			return nil, fmt.Errorf("%w: %s: %s", ErrPollFailed, failure.Kind, failure.Message)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for check of vessel %s: %w", vesselID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printCheck(w io.Writer, check *types.PositionCheck) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(check)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	vesselID := flag.String("vessel", "", "Vessel ID to check")
	requestedBy := flag.String("by", envOr("USER", "cli"), "Requester recorded on the check request")
	timeout := flag.Duration("timeout", defaultTimeout, "How long to wait for the result")
	natsURL := flag.String("nats", envOr("NATS_URL", "nats://nats:4222"), "NATS server URL")
	redisAddr := flag.String("redis", envOr("REDIS_ADDR", "redis:6379"), "Redis address")
	flag.Parse()

	if *vesselID == "" {
		fmt.Fprintln(os.Stderr, "-vessel is required")
		flag.Usage()
		os.Exit(2)
	}

	log := logger.NewLogger(envOr("LOG_LEVEL", "warn"))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *natsURL, *redisAddr, *vesselID, *requestedBy, *timeout, log); err != nil {
		log.Error("Check failed", "vessel_id", *vesselID, "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, natsURL, redisAddr, vesselID, requestedBy string, timeout time.Duration, log logger.Logger) error {
	bus, err := nats.New(natsURL, log)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer bus.Close()

	cache, err := redis.New(redisAddr)
	if err != nil {
		return fmt.Errorf("failed to create Redis client: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			log.Warn("Error closing Redis client", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	check, err := NewRequester(bus, cache, log).Request(ctx, vesselID, requestedBy)
	if err != nil {
		return err
	}
	return printCheck(os.Stdout, check)
}
