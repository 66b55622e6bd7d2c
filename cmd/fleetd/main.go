package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ohmvision/ov-fleet/internal/api"
	"github.com/ohmvision/ov-fleet/internal/config"
	"github.com/ohmvision/ov-fleet/internal/connect"
	"github.com/ohmvision/ov-fleet/internal/data"
	"github.com/ohmvision/ov-fleet/internal/discovery"
	"github.com/ohmvision/ov-fleet/internal/events"
	"github.com/ohmvision/ov-fleet/internal/health"
	"github.com/ohmvision/ov-fleet/internal/metrics"
	"github.com/ohmvision/ov-fleet/internal/profiles"
	"github.com/ohmvision/ov-fleet/internal/reconnect"
	"github.com/ohmvision/ov-fleet/internal/scan"
	"github.com/ohmvision/ov-fleet/internal/stream"
)

func main() {
	configPath := flag.String("config", "config/fleet.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("configuration unreadable")
	}

	log := newLogger(cfg)
	log.Info().Str("config", *configPath).Msg("fleetd starting")

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)

	catalog := profiles.NewCatalog(log)
	stop := make(chan struct{})
	if cfg.Profiles.OverlayPath != "" {
		if err := catalog.LoadOverlay(cfg.Profiles.OverlayPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.Profiles.OverlayPath).Msg("profile overlay not loaded")
		}
		go func() {
			if err := catalog.Watch(cfg.Profiles.OverlayPath, stop); err != nil {
				log.Warn().Err(err).Msg("profile overlay watch unavailable")
			}
		}()
	}

	repo := buildRepository(log, cfg)
	cache := buildFrameCache(log, cfg)
	bus := buildEventBus(log, cfg)

	scanner := scan.NewScanner(log, catalog, scan.DefaultNeighborResolver())
	prober := discovery.NewProber(log)
	discSvc := discovery.NewService(log, scanner, prober, catalog, repo, met)
	discSvc.SetScanDefaults(cfg.ProbeTimeout(), scan.Options{
		Workers:        cfg.Scan.Workers,
		ConnectTimeout: cfg.ScanConnectTimeout(),
	})

	tester := connect.NewTester(log, catalog, cfg.ConnectTestTimeout())
	sched := reconnect.NewScheduler(reconnect.Config{
		InitialDelay:  time.Duration(cfg.Reconnect.InitialDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.Reconnect.MaxDelaySeconds) * time.Second,
		BackoffFactor: cfg.Reconnect.BackoffFactor,
		MaxAttempts:   cfg.Reconnect.MaxAttempts,
	})
	monitor := health.NewMonitor(log, health.Config{
		Interval:     cfg.HealthInterval(),
		BatchSize:    cfg.Health.BatchSize,
		UptimeWindow: cfg.Health.UptimeWindow,
	}, repo, tester, sched, bus, met)
	monitor.Start()

	broadcaster := stream.NewBroadcaster(log, cache, met)

	server := api.NewServer(log, discSvc, tester, monitor, broadcaster, met, registry)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("api shutdown incomplete")
	}

	close(stop)
	broadcaster.StopAll()
	monitor.Stop()
	log.Info().Msg("fleetd stopped")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = os.Stderr
	if cfg.Log.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func buildRepository(log zerolog.Logger, cfg config.Config) data.DeviceRepository {
	if cfg.Database.DSN == "" {
		log.Warn().Msg("no database configured, using in-memory device repository")
		return data.NewMemoryDeviceRepository()
	}
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	db.SetMaxOpenConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("database unreachable")
	}
	return &data.DeviceModel{DB: db}
}

func buildFrameCache(log zerolog.Logger, cfg config.Config) stream.FrameCache {
	if cfg.Redis.Addr == "" {
		return stream.NoopFrameCache{}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, frame cache disabled")
		return stream.NoopFrameCache{}
	}
	return stream.NewRedisFrameCache(client, cfg.FrameTTL())
}

func buildEventBus(log zerolog.Logger, cfg config.Config) events.Publisher {
	if cfg.NATS.URL == "" {
		return events.Noop{}
	}
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("nats unreachable, events disabled")
		return events.Noop{}
	}
	return events.NewNATSPublisher(conn, cfg.NATS.Subject, cfg.NATS.MaxRetries)
}
