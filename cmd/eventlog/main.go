package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/nats"
	"github.com/saviobatista/seatime-logger/internal/storage"
)

// EventWriter appends one JSON record to the archive
type EventWriter interface {
	WriteJSON(v interface{}) error
}

// Record is one archived bus event
type Record struct {
	Subject    string          `json:"subject"`
	ReceivedAt time.Time       `json:"received_at"`
	Event      json.RawMessage `json:"event"`
}

// Archiver writes every bus event it receives to daily rotating files
type Archiver struct {
	out     EventWriter
	log     logger.Logger
	now     func() time.Time
	written atomic.Uint64
	failed  atomic.Uint64
}

// NewArchiver creates an Archiver writing to out
func NewArchiver(out EventWriter, log logger.Logger) *Archiver {
	return &Archiver{out: out, log: log, now: time.Now}
}

// Handle archives one event. Payloads that are not JSON are kept as strings.
func (a *Archiver) Handle(subject string, data []byte) {
	event := json.RawMessage(data)
	if !json.Valid(data) {
		quoted, _ := json.Marshal(string(data))
		event = quoted
	}

	rec := Record{Subject: subject, ReceivedAt: a.now().UTC(), Event: event}
	if err := a.out.WriteJSON(rec); err != nil {
		a.failed.Add(1)
		a.log.Error("Failed to archive event", "subject", subject, "error", err)
		return
	}
	a.written.Add(1)
}

// Counts returns how many events were written and how many failed
func (a *Archiver) Counts() (written, failed uint64) {
	return a.written.Load(), a.failed.Load()
}

// parseEnvironment extracts environment variables with defaults
func parseEnvironment() (outputDir, natsURL, level string) {
	outputDir = os.Getenv("EVENT_LOG_DIR")
	if outputDir == "" {
		outputDir = "./logs/events"
	}
	natsURL = os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://nats:4222"
	}
	level = os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return outputDir, natsURL, level
}

// run archives events until ctx is done
func run(ctx context.Context, outputDir, natsURL string, log logger.Logger) error {
	store := storage.New(outputDir, "events", log)
	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to start event storage: %w", err)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			log.Error("Error closing event storage", "error", err)
		}
	}()

	client, err := nats.New(natsURL, log)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer client.Close()

	archiver := NewArchiver(store, log)
	if err := client.SubscribeEvents(archiver.Handle); err != nil {
		return err
	}
	log.Info("Event archiver running", "output_dir", outputDir, "nats_url", natsURL)

	<-ctx.Done()

	written, failed := archiver.Counts()
	log.Info("Event archiver stopped", "written", written, "failed", failed)
	return nil
}

func main() {
	outputDir, natsURL, level := parseEnvironment()
	log := logger.NewLogger(level)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, outputDir, natsURL, log); err != nil {
		log.Error("Event archiver failed", "error", err)
		stop()
		os.Exit(1)
	}
}
