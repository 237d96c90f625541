package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"home-security/config"
	"home-security/internal/infra/mqtt"
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
	mqtt.RouteLogs(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clientID := cfg.MQTT.ClientID + "-sim-" + uuid.NewString()[:8]
	transport := mqtt.NewTransport(cfg.MQTTConfig(clientID, logger), logger)
	sim := simulator.New(transport, cfg.Catalog(), cfg.SimulatorConfig(logger), logger)

	logger.Info("starting device simulator", "broker", cfg.MQTT.Broker)

	if err := sim.Run(ctx); err != nil {
		logger.Error("simulator error", "error", err)
		os.Exit(1)
	}
}
