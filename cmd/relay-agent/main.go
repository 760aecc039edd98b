// Command relay-agent is a reference control agent for a single remote
// stateful device.
//
// It maintains a resilient authenticated session (retry with backoff,
// single-flight login, out-of-band credential refresh), serializes all
// read/write operations, bounds their caller-visible latency, and escalates
// terminal failures per the configured restart policy.
//
// Usage:
//
//	relay-agent [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-addr string        Device address (overrides config)
//	-token string       Fixed credential (overrides config)
//	-dynamic            Enable dynamic out-of-band credential mode
//	-simulate           Run against the built-in simulated device (default true)
//	-interactive        Start the interactive console
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-event-log string   CBOR session event log file path
//
// Examples:
//
//	# Interactive console against the simulated device
//	relay-agent -interactive
//
//	# Headless with a config file, writing the session event log
//	relay-agent -config /etc/relaylink/agent.yaml -event-log /var/log/relaylink/events.cbor
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

	"github.com/relaylink-protocol/relaylink-go/cmd/relay-agent/interactive"
	"github.com/relaylink-protocol/relaylink-go/internal/simdevice"
	"github.com/relaylink-protocol/relaylink-go/pkg/config"
	"github.com/relaylink-protocol/relaylink-go/pkg/log"
	"github.com/relaylink-protocol/relaylink-go/pkg/service"
)

var flags struct {
	configFile  string
	addr        string
	token       string
	dynamic     bool
	simulate    bool
	interactive bool
	logLevel    string
	eventLog    string
}

func init() {
	flag.StringVar(&flags.configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&flags.addr, "addr", "", "Device address (overrides config)")
	flag.StringVar(&flags.token, "token", "", "Fixed credential (overrides config)")
	flag.BoolVar(&flags.dynamic, "dynamic", false, "Enable dynamic out-of-band credential mode")
	flag.BoolVar(&flags.simulate, "simulate", true, "Run against the built-in simulated device")
	flag.BoolVar(&flags.interactive, "interactive", false, "Start the interactive console")
	flag.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.eventLog, "event-log", "", "CBOR session event log file path")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg.LogLevel)

	events, closeEvents, err := setupEventLog(cfg, logger)
	if err != nil {
		logger.Error("event log setup failed", "error", err)
		os.Exit(1)
	}
	defer closeEvents()

	if !flags.simulate {
		logger.Error("no built-in transport for real devices; run with -simulate or integrate a transport")
		os.Exit(1)
	}

	sim := simdevice.New(simdevice.Config{Latency: 10 * time.Millisecond})

	svc, err := service.New(cfg, sim,
		service.WithLogger(logger),
		service.WithEventLogger(events))
	if err != nil {
		logger.Error("service setup failed", "error", err)
		os.Exit(1)
	}

	logger.Info("relay agent started",
		"device_addr", cfg.DeviceAddr,
		"dynamic_credential", cfg.DynamicCredential,
		"simulate", flags.simulate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flags.interactive {
		console, err := interactive.New(svc, sim)
		if err != nil {
			logger.Error("console setup failed", "error", err)
			os.Exit(1)
		}
		console.Run(ctx, cancel)
	} else {
		runHeadless(ctx, cancel, svc, logger)
	}

	logger.Info("shutting down")
	if err := svc.Shutdown(); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
}

// loadConfig builds the configuration from the config file and flag
// overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if flags.configFile != "" {
		loaded, err := config.Load(flags.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
	}

	if flags.addr != "" {
		cfg.DeviceAddr = flags.addr
	}
	if flags.token != "" {
		cfg.Token = flags.token
	}
	if flags.dynamic {
		cfg.DynamicCredential = true
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.eventLog != "" {
		cfg.EventLogFile = flags.eventLog
	}

	// Simulation mode can run without any file or flags.
	if flags.simulate && cfg.DeviceAddr == "" {
		cfg.DeviceAddr = "simulated"
	}
	if flags.simulate && cfg.Token == "" && !cfg.DynamicCredential {
		cfg.DynamicCredential = true
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// setupEventLog assembles the session event logger: always the slog adapter,
// plus a CBOR file log when configured.
func setupEventLog(cfg *config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(logger)
	if cfg.EventLogFile == "" {
		return adapter, func() {}, nil
	}

	fileLog, err := log.NewFileLogger(cfg.EventLogFile)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := fileLog.Close(); err != nil {
			logger.Warn("closing event log", "error", err)
		}
	}
	return log.NewMultiLogger(adapter, fileLog), closeFn, nil
}

// runHeadless polls the device state until a shutdown signal arrives.
func runHeadless(ctx context.Context, cancel context.CancelFunc, svc *service.DeviceService, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received signal", "signal", sig.String())
			cancel()
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			value, err := svc.ReadState(ctx)
			if err != nil {
				logger.Warn("state poll failed", "error", err)
				continue
			}
			logger.Info("device state",
				"on", value,
				"session", svc.SessionState().String())
		}
	}
}
