// Command blegate-central connects to both peripherals, authenticates to
// P2 and drives their command cadences. With -scan it lists nearby
// devices and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/ble/hci"
	"github.com/chaz8081/blegate/internal/central"
	"github.com/chaz8081/blegate/internal/config"
	"github.com/chaz8081/blegate/internal/logging"
	"github.com/chaz8081/blegate/internal/tele"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/blegate/config.yaml)")
	scan := flag.Bool("scan", false, "list nearby BLE devices and exit")
	scanTimeout := flag.Duration("scan-timeout", 10*time.Second, "how long -scan listens")
	flag.Parse()

	cfg, src, err := config.Resolve(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
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

	adapter, err := newAdapter(cfg.Transport)
	if err != nil {
		log.Fatalf("transport: %v", err)
	}
	if cfg.Transport == "tinygo" && runtime.GOOS == "linux" {
		logger.Warn("[BLE] tinygo on linux writes without response; use transport: hci for firmware peripherals")
	}

	if *scan {
		if err := runScan(adapter, *scanTimeout); err != nil {
			log.Fatalf("scan: %v", err)
		}
		return
	}

	printBanner(cfg)

	var sink tele.Sink = tele.Nop{}
	if cfg.MQTT.Enabled {
		sink = tele.NewMQTTSink(tele.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger)
	}
	defer sink.Close()

	o, err := central.New(adapter, central.Options{
		PIN:         cfg.Central.PIN,
		UserID:      cfg.Central.UserID,
		ScanWindow:  cfg.Central.ScanWindow,
		RescanDelay: cfg.Central.RescanDelay,
		AuthDelay:   cfg.Central.AuthDelay,
		P1Interval:  cfg.Central.P1Interval,
		P2Interval:  cfg.Central.P2Interval,
		Sink:        sink,
		Logger:      logger,
		Ready:       func() { sdnotify(daemon.SdNotifyReady) },
	})
	if err != nil {
		log.Fatalf("central: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := o.Run(ctx); err != nil {
		logger.Error("[SYSTEM] central failed", "error", err)
		sink.Close()
		os.Exit(1)
	}
	o.Stop()
	sdnotify(daemon.SdNotifyStopping)
	logger.Info("[SYSTEM] goodbye")
}

func newAdapter(transport string) (ble.Adapter, error) {
	switch transport {
	case "tinygo":
		return ble.NewTinyGoAdapter(), nil
	case "hci":
		return hci.NewAdapter(), nil
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

func runScan(adapter ble.Adapter, timeout time.Duration) error {
	fmt.Printf("Scanning for %s...\n", timeout)
	devices, err := ble.ScanForDevices(adapter, timeout)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("No devices found.")
		return nil
	}
	for _, d := range devices {
		mark := " "
		if role, ok := ble.KnownRole(d); ok {
			mark = role.String()
		} else if ble.LooksLikeTarget(d) {
			mark = "?"
		}
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("  %-2s %s  %4d dBm  %s\n", mark, d.MAC, d.RSSI, name)
	}
	return nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== blegate-central ===")
	fmt.Printf("  Transport: %s\n", cfg.Transport)
	fmt.Printf("  User:      %d\n", cfg.Central.UserID)
	fmt.Printf("  Cadence:   P1 every %s, P2 every %s\n", cfg.Central.P1Interval, cfg.Central.P2Interval)
	fmt.Printf("  Scan:      %s window, %s between\n", cfg.Central.ScanWindow, cfg.Central.RescanDelay)
	if cfg.MQTT.Enabled {
		fmt.Printf("  MQTT:      %s (%s/...)\n", cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
	}
	fmt.Printf("  Log:       %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
	fmt.Println("=======================")
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		slog.Warn("[SYSTEM] sdnotify", "error", err)
	}
	return ok
}
