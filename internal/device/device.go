// Package device implements the two peripherals: an open sensor (P1) that
// accepts fixed 4-byte command frames from anyone, and a wearable (P2) that
// gates every command but AUTH_PIN behind a PIN-established session.
// Both plug into Peripheral, which owns the processor and feeds it
// transport events from a single goroutine.
package device

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

var (
	// ErrUnauthorized is returned for gated commands without a session.
	ErrUnauthorized = errors.New("device: not authenticated")
	// ErrUnknownCommand is returned for unrecognised command bytes.
	ErrUnknownCommand = errors.New("device: unknown command")
	// ErrAuthFailed is returned for a rejected AUTH_PIN.
	ErrAuthFailed = errors.New("device: authentication failed")
	// ErrInvalidParam is returned for parameters outside their range.
	ErrInvalidParam = errors.New("device: invalid parameter")
)

// Response is the outcome of one inbound frame.
type Response struct {
	// Frames are the notifications to send, in order.
	Frames [][]byte
	// Err is nil when the frame was accepted.
	Err error
}

// Processor validates inbound frames against device-local state.
// Implementations are not safe for concurrent use; Peripheral serialises
// every call.
type Processor interface {
	// ProcessFrame handles one write to the command characteristic.
	ProcessFrame(frame []byte) Response
	// Connected is called when a central connects.
	Connected()
	// Disconnected is called when the central goes away.
	Disconnected()
	// Tick runs periodic background work and returns notifications to send.
	Tick(now time.Time) [][]byte
	// Interval is the period between Ticks.
	Interval() time.Duration
	// Active drives the status LED.
	Active() bool
}

// Options are shared by both processors. Zero values pick defaults.
type Options struct {
	Logger   *slog.Logger
	Clock    func() time.Time
	Rand     *rand.Rand
	Interval time.Duration
}

func (o Options) withDefaults(device string, interval time.Duration) Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Logger = o.Logger.With("device", device)
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		o.Rand = rand.New(rand.NewPCG(seed, seed>>32|1))
	}
	if o.Interval <= 0 {
		o.Interval = interval
	}
	return o
}

func ack(frames ...[]byte) Response {
	return Response{Frames: frames}
}

func reject(err error, frames ...[]byte) Response {
	return Response{Frames: frames, Err: err}
}

// jitter returns a value in [-below, above).
func jitter(r *rand.Rand, below, above int) int {
	return r.IntN(below+above) - below
}
