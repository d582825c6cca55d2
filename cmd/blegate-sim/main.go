// Command blegate-sim runs both peripherals and the central in one
// process over the loopback transport. -drop periodically severs a link to
// exercise reconnection.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/temoto/alive/v2"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/ble/loopback"
	"github.com/chaz8081/blegate/internal/central"
	"github.com/chaz8081/blegate/internal/config"
	"github.com/chaz8081/blegate/internal/device"
	"github.com/chaz8081/blegate/internal/logging"
	"github.com/chaz8081/blegate/internal/tele"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/blegate/config.yaml)")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	drop := flag.Duration("drop", 0, "drop a link this often, alternating P1 and P2 (0 disables)")
	centralPIN := flag.String("central-pin", "", "PIN the central sends (default: the peripheral's)")
	flag.Parse()

	cfg, src, err := config.Resolve(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *centralPIN != "" {
		cfg.Central.PIN = *centralPIN
	} else {
		cfg.Central.PIN = cfg.Peripheral.PIN
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	logger, err := logging.New(os.Stderr, config.ParseLogLevel(cfg.LogLevel), cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	slog.SetDefault(logger)
	if src != "" {
		logger.Info("[CONFIG] loaded", "path", src)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	air := loopback.NewAir()
	group := alive.NewAlive()

	wearable, err := device.NewWearable(cfg.Peripheral.PIN, device.Options{
		Logger:   logger,
		Interval: cfg.Peripheral.TelemetryInterval,
	})
	if err != nil {
		log.Fatalf("device: %v", err)
	}
	peripherals := []*device.Peripheral{
		device.NewPeripheral(air.Server(), ble.P1Identity, device.NewSensor(device.Options{
			Logger:   logger,
			Interval: cfg.Peripheral.DriftInterval,
		}), device.PeripheralOptions{NotifyGap: cfg.Peripheral.NotifyGap, Logger: logger}),
		device.NewPeripheral(air.Server(), ble.P2Identity, wearable,
			device.PeripheralOptions{NotifyGap: cfg.Peripheral.NotifyGap, Logger: logger}),
	}
	for _, p := range peripherals {
		p := p
		group.Add(1)
		go func() {
			defer group.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("[SYSTEM] peripheral failed", "error", err)
			}
		}()
	}

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

	o, err := central.New(air.Adapter(), central.Options{
		PIN:         cfg.Central.PIN,
		UserID:      cfg.Central.UserID,
		ScanWindow:  cfg.Central.ScanWindow,
		RescanDelay: cfg.Central.RescanDelay,
		AuthDelay:   cfg.Central.AuthDelay,
		P1Interval:  cfg.Central.P1Interval,
		P2Interval:  cfg.Central.P2Interval,
		Sink:        sink,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("central: %v", err)
	}
	group.Add(1)
	go func() {
		defer group.Done()
		if err := o.Run(ctx); err != nil {
			logger.Error("[SYSTEM] central failed", "error", err)
		}
	}()

	if *drop > 0 {
		group.Add(1)
		go func() {
			defer group.Done()
			dropLinks(ctx, air, *drop, logger)
		}()
	}

	<-ctx.Done()
	o.Stop()
	group.Stop()
	group.Wait()
	logger.Info("[SYSTEM] simulation finished")
}

// dropLinks alternately severs the P1 and P2 links every interval.
func dropLinks(ctx context.Context, air *loopback.Air, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			role := ble.Roles[i%len(ble.Roles)]
			if air.Drop(role.Identity().Name) {
				logger.Warn("[SYSTEM] dropped link", "device", role.String())
			}
		}
	}
}
