package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth for the central role.
// On macOS, device addresses are CoreBluetooth UUIDs rather than MAC
// addresses; the MAC field of Device stores whichever the stack reports.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects the connections map.
	mu          sync.Mutex
	connections map[string]*tinyGoConnection // keyed by address string
}

// NewTinyGoAdapter creates a central adapter on the default HCI/CoreBluetooth device.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return err
	}

	// The adapter-level handler is the only disconnect signal tinygo
	// exposes; route it to the matching connection.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[addr]
		delete(a.connections, addr)
		a.mu.Unlock()
		if ok {
			conn.fireDisconnect()
		}
	})

	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, match func(Device) bool) (Device, error) {
	var (
		mu    sync.Mutex
		found Device
		ok    bool
	)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		dev := Device{
			Name: result.LocalName(),
			MAC:  result.Address.String(),
			RSSI: int(result.RSSI),
		}
		mu.Lock()
		defer mu.Unlock()
		if ok || !match(dev) {
			return
		}
		found, ok = dev, true
		if err := adapter.StopScan(); err != nil {
			slog.Warn("[BLE] stop scan failed", "error", err)
		}
	})
	close(done)

	mu.Lock()
	defer mu.Unlock()
	if ok {
		return found, nil
	}
	if err != nil && ctx.Err() == nil {
		return Device{}, fmt.Errorf("ble: scan: %w", err)
	}
	return Device{}, ErrNoMatch
}

func (a *TinyGoAdapter) Connect(ctx context.Context, dev Device) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(dev.MAC)

	// adapter.Connect blocks on the stack's own timeout; ctx can end the
	// wait sooner.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ble: connect to %s: %w", dev.MAC, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", dev.MAC, result.err)
		}
		conn := &tinyGoConnection{device: &result.device}

		a.mu.Lock()
		a.connections[result.device.Address.String()] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device *bluetooth.Device

	mu           sync.Mutex
	services     map[string]bluetooth.DeviceService
	disconnectCb func()
	disconnected bool
}

func (c *tinyGoConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse characteristic UUID: %w", err)
	}

	svc, err := c.service(serviceUUID, svcUUID)
	if err != nil {
		return nil, err
	}

	chars, err := svc.DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
	if err != nil {
		return nil, fmt.Errorf("ble: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("ble: characteristic %s: %w", charUUID, ErrNotFound)
	}

	return &tinyGoCharacteristic{char: &chars[0]}, nil
}

// service discovers a service once per connection.
func (c *tinyGoConnection) service(key string, id bluetooth.UUID) (bluetooth.DeviceService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if svc, ok := c.services[key]; ok {
		return svc, nil
	}
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{id})
	if err != nil {
		return bluetooth.DeviceService{}, fmt.Errorf("ble: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return bluetooth.DeviceService{}, fmt.Errorf("ble: service %s: %w", key, ErrNotFound)
	}
	if c.services == nil {
		c.services = make(map[string]bluetooth.DeviceService)
	}
	c.services[key] = svcs[0]
	return svcs[0], nil
}

func (c *tinyGoConnection) Disconnect() error {
	return c.device.Disconnect()
}

// OnDisconnect registers cb. If the link already dropped cb runs at once.
func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
	if c.disconnected && cb != nil {
		go cb()
	}
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	if c.disconnected {
		c.mu.Unlock()
		return
	}
	c.disconnected = true
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type tinyGoCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

func (c *tinyGoCharacteristic) Write(data []byte) error {
	return c.write(data)
}

func (c *tinyGoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cp := make([]byte, len(buf))
		copy(cp, buf)
		cb(cp)
	})
}
