package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/types"
)

const (
	StreamName = "SEATIME"

	SubjectCheckRecorded  = "seatime.checks.recorded"
	SubjectEntryCreated   = "seatime.entries.created"
	SubjectCheckRequested = "seatime.checks.requested"
	SubjectAll            = "seatime.>"
)

// StreamMaxAge bounds how long events stay in the stream
const StreamMaxAge = 7 * 24 * time.Hour

// Client publishes and consumes sea-time events over JetStream
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// New creates a new NATS client and ensures the SEATIME stream exists
func New(url string, log logger.Logger) (*Client, error) {
	nc, err := nats.Connect(url, nats.Name("seatime-logger"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectAll},
		Storage:  nats.FileStorage,
		MaxAge:   StreamMaxAge,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
		log:  log,
	}, nil
}

func (c *Client) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", subject, err)
	}
	return nil
}

// PublishPositionCheck announces a stored position check
func (c *Client) PublishPositionCheck(check *types.PositionCheck) error {
	return c.publish(SubjectCheckRecorded, check)
}

// PublishSeaTimeEntry announces a newly created sea-time entry
func (c *Client) PublishSeaTimeEntry(entry *types.SeaTimeEntry) error {
	return c.publish(SubjectEntryCreated, entry)
}

// PublishCheckRequest asks the scheduler for an immediate manual check
func (c *Client) PublishCheckRequest(req *types.CheckRequest) error {
	return c.publish(SubjectCheckRequested, req)
}

// SubscribeCheckRequests delivers manual check requests published after the call
func (c *Client) SubscribeCheckRequests(handler func(*types.CheckRequest)) error {
	sub, err := c.js.Subscribe(SubjectCheckRequested, func(msg *nats.Msg) {
		var req types.CheckRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.log.Warn("Dropping malformed check request", "error", err)
			return
		}
		handler(&req)
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe to check requests: %w", err)
	}

	c.track(sub)
	return nil
}

// SubscribeEvents delivers every event in the stream with its subject
func (c *Client) SubscribeEvents(handler func(subject string, data []byte)) error {
	sub, err := c.js.Subscribe(SubjectAll, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	c.track(sub)
	return nil
}

func (c *Client) track(sub *nats.Subscription) {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
}

// Ping reports an error when the connection is not currently established
func (c *Client) Ping(_ context.Context) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return fmt.Errorf("nats connection is %s", c.status())
	}
	return nil
}

func (c *Client) status() string {
	if c.conn == nil {
		return "closed"
	}
	return strings.ToLower(c.conn.Status().String())
}

// Close drains subscriptions and closes the NATS connection
func (c *Client) Close() {
	c.mu.Lock()
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.subs = nil
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}
}
