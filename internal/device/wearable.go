package device

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/blegate/internal/protocol"
)

// DefaultWearableInterval is the telemetry period while authenticated.
const DefaultWearableInterval = 10 * time.Second

// Report is the last EVENT a central sent.
type Report struct {
	Type  byte
	Value uint16
}

// WearableState is the P2 device record.
type WearableState struct {
	Mode         byte
	Intensity    byte
	TimerMinutes uint16
	AgeProfile   byte
	Preferences  byte
	Level        byte
	Badges       byte
	Keepalive    byte
	LastReport   Report
	Commands     uint32

	Vitals   protocol.Vitals
	Activity protocol.Activity
	Position protocol.Position
}

// DefaultWearableState returns the power-on state.
func DefaultWearableState() WearableState {
	return WearableState{
		Intensity:    50,
		TimerMinutes: 30,
		Preferences:  0x07,
		Vitals:       protocol.Vitals{TemperatureDeci: 365, HeartRate: 75},
		Activity:     protocol.Activity{Steps: 1250, Battery: 85},
		Position:     protocol.Position{LatitudeCenti: 4047, LongitudeCenti: -374},
	}
}

type wearableCommand struct {
	minPayload int
	run        func(w *Wearable, p []byte) ([]byte, error)
}

var wearableCommands = map[byte]wearableCommand{
	protocol.CmdSessionStart: {5, (*Wearable).sessionStart},
	protocol.CmdKeepalive:    {1, (*Wearable).keepalive},
	protocol.CmdMode:         {1, (*Wearable).setMode},
	protocol.CmdIntensity:    {1, (*Wearable).setIntensity},
	protocol.CmdTimer:        {2, (*Wearable).setTimer},
	protocol.CmdProfile:      {2, (*Wearable).setProfile},
	protocol.CmdEvent:        {3, (*Wearable).report},
	protocol.CmdReward:       {2, (*Wearable).reward},
	protocol.CmdLogout:       {0, (*Wearable).logout},
}

// Wearable is the P2 processor. AUTH_PIN compares a plaintext credential
// with bytes.Equal; the timing and cleartext exposure are the behaviour
// under study.
type Wearable struct {
	opts       Options
	log        *slog.Logger
	credential [protocol.CredentialSize]byte
	state      WearableState
	session    Session
	connected  bool
}

// NewWearable returns a P2 processor accepting pin.
func NewWearable(pin string, opts Options) (*Wearable, error) {
	cred, err := protocol.PackPIN(pin)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	opts = opts.withDefaults("P2", DefaultWearableInterval)
	return &Wearable{
		opts:       opts,
		log:        opts.Logger,
		credential: cred,
		state:      DefaultWearableState(),
	}, nil
}

// State returns a copy of the device record.
func (w *Wearable) State() WearableState { return w.state }

// Session returns a copy of the current session.
func (w *Wearable) Session() Session { return w.session }

func (w *Wearable) Interval() time.Duration { return w.opts.Interval }

func (w *Wearable) Active() bool { return w.session.Authenticated }

func (w *Wearable) Connected() {
	w.connected = true
	w.session = Session{}
	w.log.Info("[BLE] central connected, awaiting PIN")
}

func (w *Wearable) Disconnected() {
	if w.session.Authenticated {
		w.log.Info("[SESSION] session cleared by disconnect", "session", w.session.ID, "user", w.session.UserID)
	}
	w.connected = false
	w.session = Session{}
	w.log.Info("[BLE] central disconnected")
}

func (w *Wearable) ProcessFrame(frame []byte) Response {
	if len(frame) == 0 {
		return reject(fmt.Errorf("device: empty write: %w", protocol.ErrFrameTooShort))
	}
	w.log.Debug("[RX] command frame", "hex", protocol.Hex(frame))

	cmd := frame[0]
	if cmd == protocol.CmdAuthPIN {
		return w.authenticate(frame)
	}
	if cmd == protocol.CmdLogout && !w.session.Authenticated {
		w.log.Info("[AUTH] logout without session")
		return ack(protocol.MustState(protocol.CmdLogout, 0x00))
	}
	if !w.session.Authenticated {
		w.log.Warn("[SEC] command rejected, not authenticated", "cmd", fmt.Sprintf("0x%02X", cmd))
		return reject(fmt.Errorf("device: command 0x%02X: %w", cmd, ErrUnauthorized), protocol.NotAuthenticated())
	}

	c, ok := wearableCommands[cmd]
	if !ok {
		w.log.Warn("[CMD] unknown command", "cmd", fmt.Sprintf("0x%02X", cmd))
		return reject(fmt.Errorf("device: command 0x%02X: %w", cmd, ErrUnknownCommand),
			protocol.CommandError(cmd, protocol.ErrCodeUnknownCommand))
	}

	v, err := protocol.DecodeVariable(frame)
	if err == nil && len(v.Payload) < c.minPayload {
		err = fmt.Errorf("%w: %s needs %d payload bytes, got %d",
			protocol.ErrFrameTooShort, protocol.VariableName(cmd), c.minPayload, len(v.Payload))
	}
	// E2 answers every malformed frame, an oversized declared length
	// included; the firmware has no separate code for it.
	if err != nil {
		w.log.Warn("[ERROR] malformed frame", "hex", protocol.Hex(frame), "error", err)
		return reject(err, protocol.CommandError(cmd, protocol.ErrCodeFrameTooShort))
	}

	out, err := c.run(w, v.Payload)
	if err != nil {
		w.log.Warn("[CMD] rejected", "cmd", protocol.VariableName(cmd), "error", err)
		return reject(err, protocol.CommandError(cmd, protocol.ErrCodeInvalidParam))
	}
	w.state.Commands++
	return ack(out)
}

func (w *Wearable) authenticate(frame []byte) Response {
	fail := protocol.MustState(protocol.CmdAuthPIN, protocol.AuthFailed)

	v, err := protocol.DecodeVariable(frame)
	if err != nil {
		w.log.Warn("[AUTH] malformed AUTH_PIN", "hex", protocol.Hex(frame), "error", err)
		return reject(fmt.Errorf("%w: %w", ErrAuthFailed, err), fail)
	}
	if len(v.Payload) < 2+protocol.CredentialSize {
		w.log.Warn("[AUTH] AUTH_PIN payload too short", "len", len(v.Payload))
		return reject(fmt.Errorf("%w: payload %d bytes", ErrAuthFailed, len(v.Payload)), fail)
	}

	userID := protocol.Uint16(v.Payload[0], v.Payload[1])
	got := v.Payload[2 : 2+protocol.CredentialSize]
	w.log.Info("[AUTH] credential received", "user", userID, "credential", protocol.Hex(got))

	if !bytes.Equal(got, w.credential[:]) {
		w.log.Warn("[AUTH] wrong PIN", "user", userID)
		return reject(fmt.Errorf("%w: credential mismatch for user %d", ErrAuthFailed, userID), fail)
	}

	w.session = newSession(userID, w.opts.Clock())
	w.state.Commands++
	w.log.Info("[AUTH] authenticated", "user", userID, "session", w.session.ID)
	hi, lo := protocol.PutUint16(userID)
	return ack(protocol.MustState(protocol.CmdAuthPIN, hi, lo))
}

func (w *Wearable) sessionStart(p []byte) ([]byte, error) {
	w.session.ClientTime = binary.BigEndian.Uint32(p[:4])
	w.session.Type = p[4]
	w.log.Info("[SESSION] started", "type", p[4], "client_ms", w.session.ClientTime, "session", w.session.ID)
	return protocol.MustState(protocol.CmdSessionStart, 0x01, p[4]), nil
}

func (w *Wearable) keepalive(p []byte) ([]byte, error) {
	w.state.Keepalive = p[0]
	w.log.Debug("[SESSION] keepalive", "count", p[0])
	return protocol.MustState(protocol.CmdKeepalive, p[0]), nil
}

func (w *Wearable) setMode(p []byte) ([]byte, error) {
	if p[0] > protocol.MaxWearableMode {
		return nil, fmt.Errorf("device: mode %d: %w", p[0], ErrInvalidParam)
	}
	w.state.Mode = p[0]
	w.log.Info("[CMD] mode set", "mode", p[0])
	return protocol.MustState(protocol.CmdMode, p[0]), nil
}

func (w *Wearable) setIntensity(p []byte) ([]byte, error) {
	if p[0] > protocol.MaxIntensity {
		return nil, fmt.Errorf("device: intensity %d: %w", p[0], ErrInvalidParam)
	}
	w.state.Intensity = p[0]
	w.log.Info("[CMD] intensity set", "intensity", p[0])
	return protocol.MustState(protocol.CmdIntensity, p[0]), nil
}

func (w *Wearable) setTimer(p []byte) ([]byte, error) {
	w.state.TimerMinutes = protocol.Uint16(p[0], p[1])
	w.log.Info("[CMD] timer set", "minutes", w.state.TimerMinutes)
	return protocol.MustState(protocol.CmdTimer, p[0], p[1]), nil
}

func (w *Wearable) setProfile(p []byte) ([]byte, error) {
	w.state.AgeProfile, w.state.Preferences = p[0], p[1]
	w.log.Info("[CMD] profile set", "age_profile", p[0], "preferences", fmt.Sprintf("0x%02X", p[1]))
	return protocol.MustState(protocol.CmdProfile, p[0], p[1]), nil
}

func (w *Wearable) report(p []byte) ([]byte, error) {
	w.state.LastReport = Report{Type: p[0], Value: protocol.Uint16(p[1], p[2])}
	w.log.Info("[EVENT] reported", "type", p[0], "value", w.state.LastReport.Value)
	return protocol.MustState(protocol.CmdEvent, p[0], p[1], p[2]), nil
}

func (w *Wearable) reward(p []byte) ([]byte, error) {
	w.state.Level, w.state.Badges = p[0], p[1]
	w.log.Info("[EVENT] reward granted", "level", p[0], "badges", p[1])
	return protocol.MustState(protocol.CmdReward, p[0], p[1]), nil
}

func (w *Wearable) logout([]byte) ([]byte, error) {
	w.log.Info("[AUTH] logout", "user", w.session.UserID, "session", w.session.ID)
	w.session = Session{}
	return protocol.MustState(protocol.CmdLogout, 0x00), nil
}

// Tick random-walks the simulated readings and returns the vitals,
// activity and GPS frames. Nothing is sent without an authenticated
// central.
func (w *Wearable) Tick(time.Time) [][]byte {
	if !w.connected || !w.session.Authenticated {
		return nil
	}
	r := w.opts.Rand
	st := &w.state
	st.Vitals.TemperatureDeci = int16(360 + jitter(r, 20, 30))
	st.Vitals.HeartRate = uint8(75 + jitter(r, 10, 15))
	st.Activity.Steps += uint16(50 + r.IntN(150))
	if d := uint8(r.IntN(2)); st.Activity.Battery >= d {
		st.Activity.Battery -= d
	} else {
		st.Activity.Battery = 0
	}
	st.Position.LatitudeCenti += int16(jitter(r, 5, 5))
	st.Position.LongitudeCenti += int16(jitter(r, 5, 5))

	w.log.Debug("[TELEM] sending",
		"temperature", st.Vitals.TemperatureDeci, "heart_rate", st.Vitals.HeartRate,
		"steps", st.Activity.Steps, "battery", st.Activity.Battery)
	return [][]byte{st.Vitals.Encode(), st.Activity.Encode(), st.Position.Encode()}
}

var _ Processor = (*Wearable)(nil)
