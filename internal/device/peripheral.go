package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/temoto/alive/v2"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/protocol"
)

// DefaultNotifyGap separates consecutive notifications of one response.
const DefaultNotifyGap = 50 * time.Millisecond

// ErrStopped is returned by Run after Stop.
var ErrStopped = errors.New("device: peripheral stopped")

// PeripheralOptions configures a Peripheral. A zero NotifyGap sends the
// frames of one response back to back.
type PeripheralOptions struct {
	NotifyGap time.Duration
	Indicator Indicator
	Logger    *slog.Logger
	// Ready, if set, is called once advertising has started.
	Ready func()
}

// Peripheral runs a Processor behind a ble.Server. Transport events,
// periodic ticks and notifications are handled on one goroutine, so the
// processor has a single mutator.
type Peripheral struct {
	server ble.Server
	id     ble.Identity
	proc   Processor
	led    Indicator
	gap    time.Duration
	log    *slog.Logger
	ready  func()
	alive  *alive.Alive
}

// NewPeripheral wires proc to server under identity id.
func NewPeripheral(server ble.Server, id ble.Identity, proc Processor, opts PeripheralOptions) *Peripheral {
	if opts.Indicator == nil {
		opts.Indicator = NopIndicator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NotifyGap < 0 {
		opts.NotifyGap = 0
	}
	return &Peripheral{
		server: server,
		id:     id,
		proc:   proc,
		led:    opts.Indicator,
		gap:    opts.NotifyGap,
		log:    opts.Logger.With("device", id.Name),
		ready:  opts.Ready,
		alive:  alive.NewAlive(),
	}
}

// Run starts advertising and processes events until ctx ends or Stop is
// called.
func (p *Peripheral) Run(ctx context.Context) error {
	if !p.alive.Add(1) {
		return ErrStopped
	}
	defer p.alive.Done()

	if err := p.server.Start(ctx, p.id); err != nil {
		return fmt.Errorf("device: start %s: %w", p.id.Name, err)
	}
	defer func() {
		if err := p.server.Close(); err != nil {
			p.log.Warn("[BLE] close server", "error", err)
		}
		p.setLED(false)
	}()
	p.log.Info("[SYSTEM] peripheral running", "service", p.id.ServiceUUID, "interval", p.proc.Interval())
	if p.ready != nil {
		p.ready()
	}

	ticker := time.NewTicker(p.proc.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.alive.StopChan():
			return nil
		case ev := <-p.server.Events():
			p.handle(ev)
		case now := <-ticker.C:
			p.send(p.proc.Tick(now))
		}
	}
}

// Stop ends Run and waits for it to return.
func (p *Peripheral) Stop() {
	p.alive.Stop()
	p.alive.Wait()
}

func (p *Peripheral) handle(ev ble.Event) {
	switch ev.Kind {
	case ble.EventConnect:
		p.log.Info("[BLE] connect", "peer", ev.Peer)
		p.proc.Connected()
	case ble.EventDisconnect:
		p.log.Info("[BLE] disconnect", "peer", ev.Peer)
		p.proc.Disconnected()
	case ble.EventWrite:
		resp := p.proc.ProcessFrame(ev.Data)
		if resp.Err != nil {
			p.log.Debug("[CMD] frame rejected", "hex", protocol.Hex(ev.Data), "error", resp.Err)
		}
		p.send(resp.Frames)
	}
	p.setLED(p.proc.Active())
}

func (p *Peripheral) send(frames [][]byte) {
	for i, f := range frames {
		if i > 0 && p.gap > 0 {
			time.Sleep(p.gap)
		}
		if err := p.server.Notify(f); err != nil {
			p.log.Warn("[TX] notify failed", "hex", protocol.Hex(f), "error", err)
			continue
		}
		p.log.Debug("[TX] notify", "hex", protocol.Hex(f))
	}
}

func (p *Peripheral) setLED(on bool) {
	if err := p.led.Set(on); err != nil {
		p.log.Warn("[SYSTEM] status LED", "error", err)
	}
}
