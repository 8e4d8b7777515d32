package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/saviobatista/seatime-logger/internal/ais"
	"github.com/saviobatista/seatime-logger/internal/api"
	"github.com/saviobatista/seatime-logger/internal/audit"
	"github.com/saviobatista/seatime-logger/internal/config"
	"github.com/saviobatista/seatime-logger/internal/db"
	"github.com/saviobatista/seatime-logger/internal/db/migrations"
	"github.com/saviobatista/seatime-logger/internal/logger"
	"github.com/saviobatista/seatime-logger/internal/metrics"
	"github.com/saviobatista/seatime-logger/internal/nats"
	"github.com/saviobatista/seatime-logger/internal/redis"
	"github.com/saviobatista/seatime-logger/internal/registry"
	"github.com/saviobatista/seatime-logger/internal/scheduler"
	"github.com/saviobatista/seatime-logger/internal/seatime"
	"github.com/saviobatista/seatime-logger/internal/stats"
	"github.com/saviobatista/seatime-logger/internal/storage"
)

const metricsNamespace = "seatime"

// App holds the wired scheduler service
type App struct {
	cfg *config.Config
	log logger.Logger

	db       *db.Client
	registry *registry.Registry
	redis    *redis.Client
	nats     *nats.Client
	files    *storage.Storage
	mongo    *mongo.Client
	calls    *audit.MongoStore

	promReg *prometheus.Registry
	stats   *stats.Stats
	runner  *scheduler.Runner
	manual  *scheduler.ManualChecker
	server  *api.Server
}

// NewApp connects to every backing service and wires the scheduler. Redis
// and NATS are optional: when unreachable the service runs without the
// cache and the event bus.
func NewApp(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	app := &App{cfg: cfg, log: log}
	if err := app.wire(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.log

	var err error

	// Database
	a.db, err = db.New(cfg.DBConnStr)
	if err != nil {
		return fmt.Errorf("failed to create database client: %w", err)
	}
	if err = a.db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err = migrations.New(a.db.DB(), log).Migrate(ctx, migrations.All()); err != nil {
		return err
	}
	a.registry, err = registry.Open(a.db.DB(), log)
	if err != nil {
		return err
	}

	// Optional cache and bus
	if rc, rerr := redis.New(cfg.RedisAddr); rerr != nil {
		log.Warn("Redis unavailable, running without poll cache", "addr", cfg.RedisAddr, "error", rerr)
	} else {
		a.redis = rc
	}
	if nc, nerr := nats.New(cfg.NATSURL, log); nerr != nil {
		log.Warn("NATS unavailable, running without event bus", "url", cfg.NATSURL, "error", nerr)
	} else {
		a.nats = nc
	}

	// Provider audit trail
	auditLog, err := a.openAudit(ctx)
	if err != nil {
		return err
	}

	// Metrics and statistics
	a.promReg = prometheus.NewRegistry()
	a.promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(metricsNamespace, a.promReg)

	a.stats = stats.New()
	a.stats.SetPersister(a.db)
	a.stats.SetMetrics(m)

	opts := []ais.Option{ais.WithMetrics(m)}
	if auditLog != nil {
		opts = append(opts, ais.WithAuditLogger(auditLog))
	}
	provider := ais.NewClient(ais.Config{
		BaseURL:   cfg.AISAPIURL,
		APIKey:    cfg.AISAPIKey,
		Extended:  cfg.AISExtended,
		Timeout:   cfg.AISTimeout,
		RateLimit: cfg.AISRateLimit,
	}, log.With("component", "ais"), opts...)

	// Interfaces stay nil rather than holding typed nil pointers
	var cache scheduler.PositionCache
	var pollCache api.PollCache
	if a.redis != nil {
		cache = a.redis
		pollCache = a.redis
	}
	var publisher scheduler.EventPublisher
	if a.nats != nil {
		publisher = a.nats
	}
	var calls api.CallLog
	if a.calls != nil {
		calls = a.calls
	}

	poller := scheduler.NewPoller(provider, a.db, cache, publisher, a.stats, log.With("component", "poller"))
	reconciler := seatime.NewReconciler(a.db, cfg.DayLocation, log.With("component", "reconciler"))
	toggler := seatime.NewToggler(a.db, log.With("component", "toggler"))

	a.manual = scheduler.NewManualChecker(a.registry, a.db, poller, toggler, publisher, a.stats, log.With("component", "manual"))
	a.runner = scheduler.NewRunner(scheduler.Deps{
		Tasks:      a.registry,
		Vessels:    a.registry,
		Checks:     a.db,
		Poller:     poller,
		Reconciler: reconciler,
		Publisher:  publisher,
		Stats:      a.stats,
	}, cfg.TickInterval, log.With("component", "scheduler"))

	a.server = api.NewServer(api.Deps{
		Checks:   a.db,
		Cache:    pollCache,
		Manual:   a.manual,
		Calls:    calls,
		Gatherer: a.promReg,
		Health:   a.healthChecks(),
	}, log.With("component", "api"))

	return nil
}

func (a *App) openAudit(ctx context.Context) (ais.AuditLogger, error) {
	switch a.cfg.AuditSink {
	case config.AuditSinkFile:
		a.files = storage.New(a.cfg.AuditDir, "ais_calls", a.log)
		if err := a.files.Start(); err != nil {
			a.files = nil
			return nil, fmt.Errorf("failed to start audit storage: %w", err)
		}
		return a.files, nil
	case config.AuditSinkMongo:
		client, err := audit.NewMongoClient(ctx, a.cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		a.mongo = client
		a.calls, err = audit.NewMongoStore(ctx, client.Database(a.cfg.MongoDB))
		if err != nil {
			return nil, err
		}
		return a.calls, nil
	default:
		return nil, nil
	}
}

func (a *App) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{"postgres": a.db.Ping}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	if a.nats != nil {
		checks["nats"] = a.nats.Ping
	}
	if a.mongo != nil {
		checks["mongo"] = func(ctx context.Context) error { return a.mongo.Ping(ctx, nil) }
	}
	return checks
}

// Run starts the scheduler, the bus subscription, statistics persistence
// and the HTTP API, and blocks until ctx is done
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.nats != nil {
		if err := a.nats.SubscribeCheckRequests(a.manual.HandleRequest(ctx)); err != nil {
			return err
		}
	}

	done := make(chan struct{}, 2)
	go func() {
		a.stats.StartPersistence(ctx, a.cfg.StatsInterval, a.log)
		done <- struct{}{}
	}()
	go func() {
		a.runner.Run(ctx)
		done <- struct{}{}
	}()

	err := a.server.Run(ctx, a.cfg.HTTPAddr)
	cancel()
	<-done
	<-done
	return err
}

// Close releases every connection the app holds
func (a *App) Close() {
	if a.nats != nil {
		a.nats.Close()
	}
	if a.files != nil {
		if err := a.files.Stop(); err != nil {
			a.log.Error("Error closing audit storage", "error", err)
		}
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.log.Error("Error disconnecting mongodb", "error", err)
		}
		cancel()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("Error closing redis client", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Error closing database client", "error", err)
		}
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start scheduler", "error", err)
		stop()
		os.Exit(1)
	}
	defer app.Close()

	log.Info("Sea-time scheduler running",
		"http_addr", cfg.HTTPAddr,
		"tick_interval", cfg.TickInterval,
		"audit_sink", cfg.AuditSink,
		"day_timezone", cfg.DayLocation.String())

	if err := app.Run(ctx); err != nil {
		log.Error("Scheduler exited with error", "error", err)
	}
	log.Info("Shutting down")
}
