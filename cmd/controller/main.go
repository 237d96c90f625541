package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"home-security/config"
	"home-security/internal/application"
	"home-security/internal/devices"
	"home-security/internal/domain"
	"home-security/internal/infra/bus"
	"home-security/internal/infra/metrics"
	"home-security/internal/infra/mqtt"
	"home-security/internal/infra/web"
	"home-security/internal/intent"
	"home-security/internal/simulator"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	envPath := flag.String("env", ".env", "path to optional .env file")
	flag.Parse()

	if err := config.LoadEnv(*envPath); err != nil {
		slog.Error("loading env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Log, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	catalog := cfg.Catalog()
	m := metrics.New()
	store := devices.NewStore(catalog)

	transport, sim := createTransport(cfg, catalog, logger)

	bridge := bus.NewBridge(transport, store, catalog, cfg.BridgeConfig(logger), logger, m)
	hub := application.NewHub(
		store,
		intent.New(catalog),
		bridge,
		catalog,
		cfg.Observers.BufferSize,
		logger,
		m,
	)
	store.OnChange(hub.StateChanged)
	bridge.OnStateChange(func(state bus.ConnState) {
		hub.ConnectionChanged(state == bus.StateConnected)
	})

	alerter := application.NewAlerter(store.Snapshot(), cfg.Notifier(logger), logger)
	store.OnChange(alerter.StateChanged)

	server := web.NewServer(
		cfg.WebConfig(logger),
		hub,
		store,
		func() string { return bridge.State().String() },
		m.Handler(),
		logger,
	)

	logger.Info("starting home security controller",
		"transport", cfg.Bus.Transport,
		"devices", len(catalog),
		"http_addr", cfg.HTTP.Addr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { return alerter.Run(gctx) })
	if sim != nil {
		g.Go(func() error { return sim.Run(gctx) })
	}
	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return server.Stop()
	})

	if err := g.Wait(); err != nil {
		logger.Error("controller error", "error", err)
		os.Exit(1)
	}
}

// createTransport returns the bus transport for the controller. The memory
// transport comes with an in-process device simulator on the same broker.
func createTransport(cfg *config.Config, catalog domain.Catalog, logger *slog.Logger) (bus.Transport, *simulator.Simulator) {
	if cfg.Bus.Transport == "memory" {
		broker := bus.NewMemoryBroker().WithLogger(logger.With("component", "memory_broker"))
		sim := simulator.New(broker.Client(), catalog, cfg.SimulatorConfig(logger), logger.With("component", "simulator"))
		return broker.Client(), sim
	}

	mqtt.RouteLogs(logger)
	clientID := cfg.MQTT.ClientID + "-" + uuid.NewString()[:8]
	return mqtt.NewTransport(cfg.MQTTConfig(clientID, logger), logger), nil
}
