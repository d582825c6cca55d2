package hci

import (
	"context"
	"sync"

	"github.com/currantlabs/ble"
	"github.com/pkg/errors"

	transport "github.com/chaz8081/blegate/internal/ble"
)

// Adapter is the central side of the HCI backend.
type Adapter struct{}

// NewAdapter returns a central adapter. The HCI device is opened by Enable.
func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Enable() error {
	return open()
}

func (a *Adapter) Scan(ctx context.Context, match func(transport.Device) bool) (transport.Device, error) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		found transport.Device
		ok    bool
	)
	err := ble.Scan(sctx, true, func(adv ble.Advertisement) {
		dev := transport.Device{
			Name: adv.LocalName(),
			MAC:  adv.Address().String(),
			RSSI: adv.RSSI(),
		}
		mu.Lock()
		defer mu.Unlock()
		if ok || !match(dev) {
			return
		}
		found, ok = dev, true
		cancel()
	}, nil)

	mu.Lock()
	defer mu.Unlock()
	if ok {
		return found, nil
	}
	if ctx.Err() != nil {
		return transport.Device{}, transport.ErrNoMatch
	}
	if err != nil {
		return transport.Device{}, errors.Wrap(err, "hci: scan")
	}
	return transport.Device{}, transport.ErrNoMatch
}

func (a *Adapter) Connect(ctx context.Context, dev transport.Device) (transport.Connection, error) {
	cln, err := ble.Dial(ctx, ble.NewAddr(dev.MAC))
	if err != nil {
		return nil, errors.Wrapf(err, "hci: connect to %s", dev.MAC)
	}
	p, err := cln.DiscoverProfile(true)
	if err != nil {
		_ = cln.CancelConnection()
		return nil, errors.Wrapf(err, "hci: discover profile of %s", dev.MAC)
	}
	c := &connection{client: cln, profile: p}
	go c.watch()
	return c, nil
}

var _ transport.Adapter = (*Adapter)(nil)

type connection struct {
	client  ble.Client
	profile *ble.Profile

	mu           sync.Mutex
	disconnectCb func()
}

func (c *connection) DiscoverCharacteristic(serviceUUID, charUUID string) (transport.Characteristic, error) {
	su, err := parseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	cu, err := parseUUID(charUUID)
	if err != nil {
		return nil, err
	}
	for _, s := range c.profile.Services {
		if !s.UUID.Equal(su) {
			continue
		}
		for _, ch := range s.Characteristics {
			if ch.UUID.Equal(cu) {
				return &characteristic{client: c.client, char: ch}, nil
			}
		}
		return nil, errors.Wrapf(transport.ErrNotFound, "hci: characteristic %s", charUUID)
	}
	return nil, errors.Wrapf(transport.ErrNotFound, "hci: service %s", serviceUUID)
}

func (c *connection) Disconnect() error {
	return errors.Wrap(c.client.CancelConnection(), "hci: disconnect")
}

func (c *connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *connection) watch() {
	<-c.client.Disconnected()
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type characteristic struct {
	client ble.Client
	char   *ble.Characteristic
}

func (c *characteristic) Write(data []byte) error {
	return errors.Wrap(c.client.WriteCharacteristic(c.char, data, false), "hci: write")
}

func (c *characteristic) Subscribe(cb func([]byte)) error {
	err := c.client.Subscribe(c.char, false, func(req []byte) {
		cp := make([]byte, len(req))
		copy(cp, req)
		cb(cp)
	})
	return errors.Wrap(err, "hci: subscribe")
}
