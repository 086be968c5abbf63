package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sensorlog/internal/alerts"
	"sensorlog/internal/api"
	"sensorlog/internal/config"
	"sensorlog/internal/engine"
	"sensorlog/internal/ingest"
	"sensorlog/internal/logging"
	"sensorlog/internal/metrics"
	"sensorlog/internal/model"
	"sensorlog/internal/relay"
	"sensorlog/internal/storage"
)

var version = "dev"

func main() {
	path := flag.String("config", os.Getenv("SENSORLOG_CONFIG"), "path to YAML or JSON config")
	flag.Parse()

	manager, err := config.NewManager(config.ResolvePath(*path))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(manager.Get().LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, manager, logger); err != nil {
		logger.Error("sensorlog terminated", "error", err)
		os.Exit(1)
	}
	logger.Info("sensorlog stopped cleanly")
}

func run(ctx context.Context, manager *config.Manager, logger *slog.Logger) error {
	cfg := manager.Get()
	collector := metrics.NewCollector()
	devices := metrics.NewStore(cfg.Devices.StoreLimit)
	events := alerts.NewStore(cfg.Events.StoreLimit)

	var store storage.Store
	if cfg.Storage.Enabled {
		s, err := storage.NewStore(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = s.Init(initCtx)
		cancel()
		if err != nil {
			_ = s.Close()
			return fmt.Errorf("init storage: %w", err)
		}
		defer s.Close()
		store = s
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	relays, err := buildRelays(cfg.Relay, logger)
	if err != nil {
		return err
	}
	fanout := relay.NewFanout(logging.Component(logger, "relay"), collector.ObserveRelay, relays...)
	defer fanout.Close()

	eng := engine.NewEngine(cfg, logging.Component(logger, "engine"), engine.Deps{
		Devices:   devices,
		Alerts:    events,
		Store:     store,
		Relays:    fanout,
		Collector: collector,
	})
	buffer := cfg.Ingest.ChannelBuffer
	if buffer <= 0 {
		buffer = 1024
	}
	in := make(chan model.ChannelMessage, buffer)
	eng.Start(ctx, in)

	ingestLogger := logging.Component(logger, "ingest")
	parser := ingest.NewParser(manager)
	ingest.StartTelegram(ctx, manager, in, ingestLogger)
	ingest.StartREST(ctx, manager, parser, in, ingestLogger)
	ingest.StartTCPStream(ctx, manager, parser, in, ingestLogger)
	ingest.StartFileTail(ctx, manager, parser, in, ingestLogger)
	ingest.StartKafka(ctx, manager, parser, in, ingestLogger)

	api.Start(ctx, manager, api.Options{
		Devices:   devices,
		Alerts:    events,
		Store:     store,
		Engine:    eng,
		Collector: collector,
		Version:   version,
	}, logging.Component(logger, "api"))

	go manager.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", manager.Path())
		eng.UpdateConfig(next)
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	logger.Info("sensorlog started", "version", version, "relays", fanout.Names(), "storage", store != nil)
	<-ctx.Done()
	return nil
}

// buildRelays returns the enabled outbound relays. Config reloads do not
// rebuild them.
func buildRelays(cfg config.RelayConfig, logger *slog.Logger) ([]relay.Relay, error) {
	var out []relay.Relay
	if cfg.HTTP.Enabled {
		out = append(out, relay.NewHTTP(cfg.HTTP))
	}
	if cfg.WhatsApp.Enabled {
		out = append(out, relay.NewWhatsApp(cfg.WhatsApp))
	}
	if cfg.Kafka.Enabled {
		out = append(out, relay.NewKafka(cfg.Kafka))
	}
	if cfg.MQTT.Enabled {
		m, err := relay.NewMQTT(cfg.MQTT)
		if err != nil {
			for _, r := range out {
				if c, ok := r.(interface{ Close() error }); ok {
					_ = c.Close()
				}
			}
			return nil, fmt.Errorf("mqtt relay: %w", err)
		}
		out = append(out, m)
	}
	for _, r := range out {
		logger.Info("relay enabled", "relay", r.Name())
	}
	return out, nil
}
