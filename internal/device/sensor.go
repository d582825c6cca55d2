package device

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/blegate/internal/protocol"
)

// DefaultSensorInterval is the sensor drift period.
const DefaultSensorInterval = 5 * time.Second

// SensorState is the P1 device record.
type SensorState struct {
	Mode        byte
	Brightness  byte
	Timer       byte // seconds
	Commands    uint32
	Temperature int16  // °C × 10
	Humidity    uint16 // % × 10
	LED         bool
	Uptime      time.Duration
}

// DefaultSensorState returns the power-on state.
func DefaultSensorState() SensorState {
	return SensorState{
		Brightness:  100,
		Temperature: 250,
		Humidity:    650,
	}
}

// drift is a mode's sensor baseline and spread.
type drift struct {
	temp, tempSpread int
	hum, humSpread   int
}

var sensorDrift = map[byte]drift{
	protocol.SensorModeNormal: {temp: 250, tempSpread: 20, hum: 650, humSpread: 50},
	protocol.SensorModeEco:    {temp: 220, tempSpread: 15, hum: 700, humSpread: 30},
	protocol.SensorModeTurbo:  {temp: 350, tempSpread: 30, hum: 550, humSpread: 60},
}

// Sensor is the P1 processor. It has no session: every well-formed known
// command is executed for whoever wrote it.
type Sensor struct {
	opts      Options
	log       *slog.Logger
	state     SensorState
	epoch     time.Time
	connected bool
}

// NewSensor returns a P1 processor in its power-on state.
func NewSensor(opts Options) *Sensor {
	opts = opts.withDefaults("P1", DefaultSensorInterval)
	return &Sensor{
		opts:  opts,
		log:   opts.Logger,
		state: DefaultSensorState(),
		epoch: opts.Clock(),
	}
}

// State returns a copy of the device record.
func (s *Sensor) State() SensorState {
	st := s.state
	st.Uptime = s.opts.Clock().Sub(s.epoch)
	return st
}

func (s *Sensor) Interval() time.Duration { return s.opts.Interval }

func (s *Sensor) Active() bool { return s.connected }

func (s *Sensor) Connected() {
	s.connected = true
	s.log.Info("[BLE] central connected")
}

func (s *Sensor) Disconnected() {
	s.connected = false
	s.log.Info("[BLE] central disconnected")
}

func (s *Sensor) ProcessFrame(frame []byte) Response {
	if len(frame) == 0 {
		return reject(fmt.Errorf("device: empty write: %w", protocol.ErrFrameTooShort))
	}
	s.log.Debug("[RX] command frame", "hex", protocol.Hex(frame))

	f, err := protocol.DecodeFixed(frame)
	if err != nil {
		s.log.Warn("[ERROR] frame too short", "hex", protocol.Hex(frame))
		return reject(err, protocol.LegacyError(frame[0], protocol.ErrCodeFrameTooShort))
	}

	p := f.Params[0]
	switch f.Cmd {
	case protocol.CmdSetMode:
		if p > protocol.MaxSensorMode {
			s.log.Warn("[CMD] mode out of range, ignored", "mode", p)
			return reject(fmt.Errorf("device: mode %d: %w", p, ErrInvalidParam))
		}
		s.state.Mode = p
		s.accept("mode set", "mode", p)
		return ack(protocol.EncodeFixed(protocol.CmdSetMode, p, 0, 0))

	case protocol.CmdGetStatus:
		s.accept("status requested")
		var led byte
		if s.state.LED {
			led = 1
		}
		return ack(protocol.EncodeFixed(protocol.CmdGetStatus, s.state.Mode, s.state.Brightness, led))

	case protocol.CmdSetBrightness:
		s.state.Brightness = p
		s.accept("brightness set", "brightness", p)
		return ack(protocol.EncodeFixed(protocol.CmdSetBrightness, p, 0, 0))

	case protocol.CmdResetCounters:
		s.state.Commands = 0
		s.epoch = s.opts.Clock()
		s.log.Info("[CMD] counters reset")
		return ack(protocol.EncodeFixed(protocol.CmdResetCounters, 0, 0, 0))

	case protocol.CmdGetTelemetry:
		s.accept("telemetry requested",
			"temperature", s.state.Temperature, "humidity", s.state.Humidity)
		return ack(
			protocol.EncodeTemperature(s.state.Temperature),
			protocol.EncodeHumidity(s.state.Humidity),
		)

	case protocol.CmdSetTimer:
		s.state.Timer = p
		s.accept("timer set", "seconds", p)
		return ack(protocol.EncodeFixed(protocol.CmdSetTimer, p, 0, 0))
	}

	s.log.Warn("[CMD] unknown command", "cmd", fmt.Sprintf("0x%02X", f.Cmd))
	return reject(fmt.Errorf("device: command 0x%02X: %w", f.Cmd, ErrUnknownCommand),
		protocol.LegacyError(f.Cmd, protocol.ErrCodeUnknownCommand))
}

func (s *Sensor) accept(msg string, args ...any) {
	s.state.Commands++
	s.log.Info("[CMD] "+msg, append(args, "commands", s.state.Commands)...)
}

// Tick drifts the simulated readings around the current mode's baseline
// and toggles the LED flag. It never notifies.
func (s *Sensor) Tick(time.Time) [][]byte {
	d, ok := sensorDrift[s.state.Mode]
	if !ok {
		d = sensorDrift[protocol.SensorModeNormal]
	}
	r := s.opts.Rand
	s.state.Temperature = int16(d.temp + jitter(r, d.tempSpread, d.tempSpread))
	s.state.Humidity = uint16(d.hum + jitter(r, d.humSpread, d.humSpread))
	s.state.LED = !s.state.LED
	s.log.Debug("[TELEM] readings drifted",
		"temperature", s.state.Temperature, "humidity", s.state.Humidity, "led", s.state.LED)
	return nil
}

var _ Processor = (*Sensor)(nil)
