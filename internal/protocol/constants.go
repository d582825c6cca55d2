package protocol

// Frame limits imposed by the 20-byte ATT payload.
const (
	MTU             = 20
	MaxPayload      = 17 // variable frame: len must be < 18
	MaxStatePayload = 19
	FixedFrameSize  = 4
)

// Legacy (P1) command bytes.
const (
	CmdSetMode       byte = 0x01
	CmdGetStatus     byte = 0x02
	CmdSetBrightness byte = 0x03
	CmdResetCounters byte = 0x04
	CmdGetTelemetry  byte = 0x05
	CmdSetTimer      byte = 0x06
)

// Variable frame (P2) command bytes.
const (
	CmdAuthPIN      byte = 0x01
	CmdSessionStart byte = 0x02
	CmdKeepalive    byte = 0x03
	CmdMode         byte = 0x10
	CmdIntensity    byte = 0x11
	CmdTimer        byte = 0x12
	CmdProfile      byte = 0x13
	CmdEvent        byte = 0x20
	CmdReward       byte = 0x21
	CmdLogout       byte = 0x99
)

// State frame types that are not command acks.
const (
	TypeTelemetry byte = 0xA0
	TypeError     byte = 0xFF
)

// Telemetry sub-types. P1 readings ride on CmdGetTelemetry acks, P2
// readings on TypeTelemetry frames.
const (
	SubTemperature byte = 0x01
	SubHumidity    byte = 0x02

	SubVitals   byte = 0x01
	SubActivity byte = 0x02
	SubPosition byte = 0x03
)

// Error codes carried in TypeError frames.
const (
	ErrCodeUnknownCommand   byte = 0xE0
	ErrCodeNotAuthenticated byte = 0xE1
	ErrCodeFrameTooShort    byte = 0xE2
	ErrCodeInvalidParam     byte = 0xE3
)

// AuthFailed is the single payload byte of a rejected AUTH_PIN ack.
const AuthFailed byte = 0x00

// Mode catalogs.
const (
	SensorModeNormal byte = 0
	SensorModeEco    byte = 1
	SensorModeTurbo  byte = 2
	MaxSensorMode         = SensorModeTurbo

	MaxWearableMode = 3
	MaxIntensity    = 100
)

var legacyNames = map[byte]string{
	CmdSetMode:       "SET_MODE",
	CmdGetStatus:     "GET_STATUS",
	CmdSetBrightness: "SET_BRIGHTNESS",
	CmdResetCounters: "RESET_COUNTERS",
	CmdGetTelemetry:  "GET_TELEMETRY",
	CmdSetTimer:      "SET_TIMER",
}

var variableNames = map[byte]string{
	CmdAuthPIN:      "AUTH_PIN",
	CmdSessionStart: "SESSION_START",
	CmdKeepalive:    "KEEPALIVE",
	CmdMode:         "SET_MODE",
	CmdIntensity:    "SET_INTENSITY",
	CmdTimer:        "SET_TIMER",
	CmdProfile:      "SET_PROFILE",
	CmdEvent:        "EVENT",
	CmdReward:       "REWARD",
	CmdLogout:       "LOGOUT",
}

var errorNames = map[byte]string{
	ErrCodeUnknownCommand:   "unknown command",
	ErrCodeNotAuthenticated: "not authenticated",
	ErrCodeFrameTooShort:    "frame too short",
	ErrCodeInvalidParam:     "invalid parameter",
}

// LegacyName returns the mnemonic of a P1 command byte.
func LegacyName(cmd byte) string {
	if n, ok := legacyNames[cmd]; ok {
		return n
	}
	return "UNKNOWN"
}

// VariableName returns the mnemonic of a P2 command byte.
func VariableName(cmd byte) string {
	if n, ok := variableNames[cmd]; ok {
		return n
	}
	return "UNKNOWN"
}

// ErrorName describes an error code.
func ErrorName(code byte) string {
	if n, ok := errorNames[code]; ok {
		return n
	}
	return "unknown error"
}
