// Command blegate-peripheral runs one emulated peripheral: the open P1
// sensor or the PIN-gated P2 wearable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/daemon"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/ble/hci"
	"github.com/chaz8081/blegate/internal/config"
	"github.com/chaz8081/blegate/internal/device"
	"github.com/chaz8081/blegate/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/blegate/config.yaml)")
	roleFlag := flag.String("role", "", "peripheral role, p1 or p2 (overrides config)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
		} else {
			fmt.Println("Wrote", path)
		}
		return
	}

	cfg, src, err := config.Resolve(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *roleFlag != "" {
		cfg.Peripheral.Role = *roleFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger, err := logging.New(os.Stderr, config.ParseLogLevel(cfg.LogLevel), cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	slog.SetDefault(logger)
	if src == "" {
		logger.Info("[CONFIG] no config file found, using defaults")
	} else {
		logger.Info("[CONFIG] loaded", "path", src)
	}

	role, err := ble.ParseRole(cfg.Peripheral.Role)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	id := role.Identity().WithName(cfg.Peripheral.Name)
	printBanner(cfg, role, id)

	proc, err := newProcessor(cfg, role, logger)
	if err != nil {
		log.Fatalf("device: %v", err)
	}

	var led device.Indicator = device.NopIndicator{}
	if cfg.Peripheral.LED.Chip != "" {
		g, err := device.OpenGPIOIndicator(cfg.Peripheral.LED.Chip, cfg.Peripheral.LED.Line, "blegate-"+strings.ToLower(role.String()))
		if err != nil {
			log.Fatalf("status LED: %v", err)
		}
		defer g.Close()
		led = g
	}

	server, err := newServer(cfg.Transport)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}

	p := device.NewPeripheral(server, id, proc, device.PeripheralOptions{
		NotifyGap: cfg.Peripheral.NotifyGap,
		Indicator: led,
		Logger:    logger,
		Ready:     func() { sdnotify(daemon.SdNotifyReady) },
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		logger.Error("[SYSTEM] peripheral failed", "error", err)
		os.Exit(1)
	}
	sdnotify(daemon.SdNotifyStopping)
	logger.Info("[SYSTEM] goodbye")
}

func newProcessor(cfg *config.Config, role ble.Role, logger *slog.Logger) (device.Processor, error) {
	opts := device.Options{Logger: logger}
	if role == ble.RoleP2 {
		opts.Interval = cfg.Peripheral.TelemetryInterval
		return device.NewWearable(cfg.Peripheral.PIN, opts)
	}
	opts.Interval = cfg.Peripheral.DriftInterval
	return device.NewSensor(opts), nil
}

func newServer(transport string) (ble.Server, error) {
	switch transport {
	case "tinygo":
		return ble.NewTinyGoServer(), nil
	case "hci":
		return hci.NewServer(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config, role ble.Role, id ble.Identity) {
	fmt.Println("=== blegate-peripheral ===")
	fmt.Printf("  Role:      %s (%s)\n", role, id.Name)
	fmt.Printf("  Service:   %s\n", id.ServiceUUID)
	fmt.Printf("  Transport: %s\n", cfg.Transport)
	if role == ble.RoleP2 {
		fmt.Printf("  Telemetry: every %s\n", cfg.Peripheral.TelemetryInterval)
	} else {
		fmt.Printf("  Drift:     every %s\n", cfg.Peripheral.DriftInterval)
	}
	if cfg.Peripheral.LED.Chip != "" {
		fmt.Printf("  LED:       %s line %d\n", cfg.Peripheral.LED.Chip, cfg.Peripheral.LED.Line)
	}
	fmt.Printf("  Log:       %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
	fmt.Println("==========================")
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		slog.Warn("[SYSTEM] sdnotify", "error", err)
	}
	return ok
}
