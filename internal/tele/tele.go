// Package tele forwards what the central learns (decoded telemetry and
// peer link state) to an external sink.
package tele

import (
	"time"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/protocol"
)

// Sink receives central observations. Implementations must not block the
// caller, which is a transport notification callback.
type Sink interface {
	Telemetry(role ble.Role, r protocol.Reading)
	PeerState(role ble.Role, state string, authenticated bool)
	Close()
}

// Nop discards everything.
type Nop struct{}

func (Nop) Telemetry(ble.Role, protocol.Reading) {}
func (Nop) PeerState(ble.Role, string, bool)     {}
func (Nop) Close()                               {}

// TelemetryMessage is the JSON body of a telemetry publication.
type TelemetryMessage struct {
	Role   string             `json:"role"`
	Kind   string             `json:"kind"`
	Values map[string]float64 `json:"values"`
	Time   time.Time          `json:"ts"`
}

// StateMessage is the JSON body of a peer state publication.
type StateMessage struct {
	Role          string    `json:"role"`
	State         string    `json:"state"`
	Authenticated bool      `json:"authenticated"`
	Time          time.Time `json:"ts"`
}
