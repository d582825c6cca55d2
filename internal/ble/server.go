package ble

import "context"

// EventKind discriminates peripheral-side transport events.
type EventKind int

const (
	// EventConnect signals that a central connected.
	EventConnect EventKind = iota
	// EventDisconnect signals that the central went away.
	EventDisconnect
	// EventWrite carries bytes the central wrote to the command characteristic.
	EventWrite
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventWrite:
		return "write"
	}
	return "unknown"
}

// Event is emitted on the channel returned by Server.Events.
type Event struct {
	Kind EventKind
	Peer string // remote address, when the stack reports one
	Data []byte // EventWrite only; owned by the receiver
}

// Server hosts a peripheral's command/state service.
type Server interface {
	// Start registers the service described by id (command characteristic
	// writable, state characteristic notifying) and begins advertising.
	// Advertising stops when ctx ends.
	Start(ctx context.Context, id Identity) error
	// Events returns the channel of transport events. Delivery is ordered.
	Events() <-chan Event
	// Notify sends one frame on the state characteristic.
	Notify(data []byte) error
	// Close tears down the service and drops any link.
	Close() error
}

// eventBuffer is the capacity of every backend's event channel.
const eventBuffer = 64

// NewEventChan returns an event channel sized like the built-in backends'.
func NewEventChan() chan Event {
	return make(chan Event, eventBuffer)
}
