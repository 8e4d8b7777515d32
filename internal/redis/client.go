package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/seatime-logger/internal/types"
)

const (
	// LatestPositionTTL bounds how long a vessel's last check stays cached
	LatestPositionTTL = time.Hour
	// PollFailureTTL bounds how long a failed poll marker is kept
	PollFailureTTL = 24 * time.Hour
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client caches the latest check and poll failures per vessel
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func positionKey(vesselID string) string {
	return fmt.Sprintf("position:%s", vesselID)
}

func failureKey(vesselID string) string {
	return fmt.Sprintf("poll_failure:%s", vesselID)
}

func (c *Client) setData(ctx context.Context, key string, value interface{}, ttl time.Duration, dataType string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", dataType, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", dataType, err)
	}
	return nil
}

// getData retrieves data from Redis and unmarshals it into the target.
// It reports false when the key does not exist.
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

// StoreLatestPosition caches the vessel's most recent position check
func (c *Client) StoreLatestPosition(ctx context.Context, check *types.PositionCheck) error {
	return c.setData(ctx, positionKey(check.VesselID), check, LatestPositionTTL, "position check")
}

// GetLatestPosition returns the cached check, or nil if none is cached
func (c *Client) GetLatestPosition(ctx context.Context, vesselID string) (*types.PositionCheck, error) {
	var check types.PositionCheck
	found, err := c.getData(ctx, positionKey(vesselID), &check, "position check")
	if err != nil || !found {
		return nil, err
	}
	return &check, nil
}

// SetPollFailure records the last failed poll for a vessel
func (c *Client) SetPollFailure(ctx context.Context, failure *types.PollFailure) error {
	return c.setData(ctx, failureKey(failure.VesselID), failure, PollFailureTTL, "poll failure")
}

// GetPollFailure returns the last failed poll, or nil if the vessel has none
func (c *Client) GetPollFailure(ctx context.Context, vesselID string) (*types.PollFailure, error) {
	var failure types.PollFailure
	found, err := c.getData(ctx, failureKey(vesselID), &failure, "poll failure")
	if err != nil || !found {
		return nil, err
	}
	return &failure, nil
}

// ClearPollFailure removes the failure marker after a successful poll
func (c *Client) ClearPollFailure(ctx context.Context, vesselID string) error {
	return c.client.Del(ctx, failureKey(vesselID)).Err()
}
