package central

import (
	"time"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/protocol"
)

// Command is one entry of a role's rotating command cadence.
type Command struct {
	Name string
	// Frame builds the bytes to write. elapsed is the time since the
	// orchestrator started.
	Frame func(elapsed time.Duration) ([]byte, error)
}

func fixed(name string, cmd, p1 byte) Command {
	return Command{Name: name, Frame: func(time.Duration) ([]byte, error) {
		return protocol.EncodeFixed(cmd, p1, 0, 0), nil
	}}
}

func variable(name string, cmd byte, payload ...byte) Command {
	return Command{Name: name, Frame: func(time.Duration) ([]byte, error) {
		return protocol.EncodeVariable(cmd, payload)
	}}
}

// Rotation returns the commands issued to role, one per interval, cycling.
func Rotation(role ble.Role) []Command {
	if role == ble.RoleP2 {
		return p2Rotation
	}
	return p1Rotation
}

var p1Rotation = []Command{
	fixed("SET_MODE", protocol.CmdSetMode, protocol.SensorModeEco),
	fixed("SET_BRIGHTNESS", protocol.CmdSetBrightness, 80),
	fixed("GET_STATUS", protocol.CmdGetStatus, 0),
	fixed("GET_TELEMETRY", protocol.CmdGetTelemetry, 0),
}

var p2Rotation = []Command{
	{Name: "SESSION_START", Frame: sessionStart},
	variable("MODE", protocol.CmdMode, 2),
	variable("INTENSITY", protocol.CmdIntensity, 75),
	variable("TIMER", protocol.CmdTimer, 0x00, 45),
	variable("EVENT", protocol.CmdEvent, 1, 0x05, 0xDC),
	variable("REWARD", protocol.CmdReward, 5, 3),
}

// sessionStart carries the central's uptime in milliseconds and session
// type 1.
func sessionStart(elapsed time.Duration) ([]byte, error) {
	ms := uint32(elapsed / time.Millisecond)
	return protocol.EncodeVariable(protocol.CmdSessionStart,
		[]byte{byte(ms >> 24), byte(ms >> 16), byte(ms >> 8), byte(ms), 0x01})
}
