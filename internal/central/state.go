package central

import (
	"fmt"
	"time"
)

// PeerState is the link state of one peripheral as seen by the central.
type PeerState int

const (
	StateScanning PeerState = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateReady
)

func (s PeerState) String() string {
	switch s {
	case StateScanning:
		return "Scanning"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAuthenticating:
		return "Authenticating"
	case StateReady:
		return "Ready"
	}
	return fmt.Sprintf("PeerState(%d)", int(s))
}

// backoffDelay returns the delay before retrying after attempt n failed
// connections, doubling from base and capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt > 16 {
		attempt = 16
	}
	delay := base << uint(attempt)
	if delay > max {
		return max
	}
	return delay
}
