package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/annahadji/beepi/internal/capture"
	"github.com/annahadji/beepi/internal/config"
	"github.com/annahadji/beepi/internal/convert"
	"github.com/annahadji/beepi/internal/emitter"
	"github.com/annahadji/beepi/internal/health"
	"github.com/annahadji/beepi/internal/lights"
	"github.com/annahadji/beepi/internal/session"
	"github.com/annahadji/beepi/internal/storage"
)

const defaultConfigPath = "config/beepi.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	name := flag.String("name", "", "Override the experiment name")
	ir := flag.Bool("ir", false, "Use infrared lighting when recording")
	backend := flag.String("backend", "", "Capture backend override (signalfile or sequence)")
	debug := flag.Bool("debug", false, "Run a small preconfigured test")
	greyscale := flag.String("greyscale", "", "Convert raw files in this directory to greyscale and exit")
	verbose := flag.Bool("v", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(*configPath, *name, *backend, *greyscale, *ir, *debug, logger); err != nil {
		logger.Error("beepid failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, name, backend, greyscale string, ir, debug bool, logger *slog.Logger) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	// Command-line overrides, applied before validation fills defaults.
	if name != "" {
		cfg.ExperimentName = name
	}
	if backend != "" {
		cfg.Camera.Backend = config.Backend(backend)
	}
	if ir {
		cfg.IR = true
	}
	if debug {
		cfg.Debug = true
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// One-shot maintenance mode: greyscale-convert a directory and exit.
	if greyscale != "" {
		conv := convert.New(logger)
		n, err := conv.Greyscale(context.Background(), greyscale, "h264", false)
		if err != nil {
			return err
		}
		logger.Info("greyscale conversion complete", "converted", n, "dir", greyscale)
		return nil
	}

	logger.Info("starting beepid",
		"config", configPath,
		"experiment", cfg.ExperimentName,
		"debug", cfg.Debug,
	)

	driver, err := capture.New(cfg.Camera, logger)
	if err != nil {
		return err
	}

	var illumination lights.Controller = lights.Disabled{}
	if cfg.IR {
		board, err := lights.NewBoard(cfg.Lights.Pins)
		if err != nil {
			return fmt.Errorf("failed to set up illumination board: %w", err)
		}
		illumination = board
	}

	deps := session.Deps{
		Driver:    driver,
		Lights:    illumination,
		Converter: convert.New(logger),
		Monitor:   storage.NewMonitor(),
		Offloader: storage.NewOffloader(logger),
	}

	if cfg.MQTT.Broker != "" {
		em := emitter.New(cfg.MQTT, "beepi-"+cfg.ExperimentName, logger)
		if err := em.Connect(); err != nil {
			// Telemetry is auxiliary; a down broker never blocks recording.
			logger.Warn("mqtt connect failed, continuing without telemetry", "error", err)
		} else {
			defer em.Disconnect()
			deps.Emitter = em
		}
	}

	controller := session.New(cfg, deps, logger)

	if cfg.Health.Port != "" {
		health.NewServer(controller, logger).Start(cfg.Health.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- controller.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		// The controller stops cleanly at the next iteration boundary;
		// the segment in progress still completes.
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errChan; err != nil {
			return err
		}
	case err := <-errChan:
		if err != nil {
			return err
		}
	}

	logger.Info("beepid stopped")
	return nil
}
