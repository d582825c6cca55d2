// Package ble defines the transport boundary between the protocol core and
// a Bluetooth LE stack. The central side is an Adapter that scans, connects
// and exposes GATT characteristics; the peripheral side is a Server that
// hosts one command/state service and reports connects, disconnects and
// writes as typed events on a channel.
package ble

import (
	"context"
	"errors"
)

var (
	// ErrNoMatch is returned by Adapter.Scan when the scan window ends
	// without an accepted advertisement.
	ErrNoMatch = errors.New("ble: no matching device")

	// ErrNotConnected is returned when writing or notifying without a link.
	ErrNotConnected = errors.New("ble: not connected")

	// ErrNotFound is returned when a service or characteristic is absent.
	ErrNotFound = errors.New("ble: attribute not found")
)

// Characteristic is a resolved remote GATT characteristic: the command
// characteristic is written, the state characteristic is subscribed.
type Characteristic interface {
	// Write issues a write request carrying one frame.
	Write(frame []byte) error
	// Subscribe enables notifications. fn receives a private copy of each
	// payload, in arrival order.
	Subscribe(fn func(frame []byte)) error
}

// Device is one advertisement seen while scanning. MAC holds whatever
// address form the stack reports.
type Device struct {
	Name string
	MAC  string
	RSSI int
}

// Connection is a live link from the central to one peripheral.
type Connection interface {
	// DiscoverCharacteristic resolves charUUID inside serviceUUID. A missing
	// service or characteristic yields an error wrapping ErrNotFound.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect tears the link down. It does not run the OnDisconnect
	// callback synchronously.
	Disconnect() error
	// OnDisconnect sets fn to run once when the link is lost.
	OnDisconnect(fn func())
}

// Adapter is the central's radio.
type Adapter interface {
	// Enable powers the radio on. It is safe to call more than once.
	Enable() error
	// Scan reports advertisements to match until it accepts one, which is
	// returned, or ctx ends, which yields ErrNoMatch. Scanning is stopped
	// before Scan returns.
	Scan(ctx context.Context, match func(Device) bool) (Device, error)
	// Connect opens a link to dev, bounded by ctx.
	Connect(ctx context.Context, dev Device) (Connection, error)
}
