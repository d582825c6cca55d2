// Package protocol implements the wire framing shared by the central and
// both peripherals: the fixed 4-byte legacy command frame, the variable
// CMD,LEN,DATA command frame, and the TYPE,PAYLOAD state frame used for
// acks, errors and telemetry notifications.
package protocol

import "fmt"

// Fixed is a decoded legacy command frame.
type Fixed struct {
	Cmd    byte
	Params [3]byte
}

// EncodeFixed builds a legacy frame. No validation is performed.
func EncodeFixed(cmd, p1, p2, p3 byte) []byte {
	return []byte{cmd, p1, p2, p3}
}

// DecodeFixed parses a legacy frame. At least the command and the first
// parameter must be present; missing parameters read as zero and bytes past
// the fourth are ignored.
func DecodeFixed(b []byte) (Fixed, error) {
	if len(b) < 2 {
		return Fixed{}, fmt.Errorf("%w: fixed frame has %d bytes, need 2", ErrFrameTooShort, len(b))
	}
	f := Fixed{Cmd: b[0]}
	copy(f.Params[:], b[1:])
	return f, nil
}

// Variable is a decoded CMD,LEN,DATA frame.
type Variable struct {
	Cmd     byte
	Payload []byte
}

// EncodeVariable builds a CMD,LEN,DATA frame. Payloads of 18 bytes or more
// would overflow the MTU and fail with ErrFrameTooLarge.
func EncodeVariable(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload %d bytes, max %d", ErrFrameTooLarge, len(payload), MaxPayload)
	}
	buf := make([]byte, 0, 2+len(payload))
	buf = append(buf, cmd, byte(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}

// DecodeVariable parses a CMD,LEN,DATA frame. A declared length that runs
// past the received bytes is rejected with ErrFrameTruncated rather than
// read short. Bytes after the declared payload are ignored.
// The returned payload aliases b.
func DecodeVariable(b []byte) (Variable, error) {
	if len(b) < 2 {
		return Variable{}, fmt.Errorf("%w: variable frame has %d bytes, need 2", ErrFrameTooShort, len(b))
	}
	n := int(b[1])
	if n > MaxPayload {
		return Variable{Cmd: b[0]}, fmt.Errorf("%w: declared length %d, max %d", ErrFrameTooLarge, n, MaxPayload)
	}
	if 2+n > len(b) {
		return Variable{Cmd: b[0]}, fmt.Errorf("%w: declared %d, have %d", ErrFrameTruncated, n, len(b)-2)
	}
	return Variable{Cmd: b[0], Payload: b[2 : 2+n]}, nil
}

// State is a decoded notification frame.
type State struct {
	Type    byte
	Payload []byte
}

// EncodeState builds a TYPE,PAYLOAD notification frame.
func EncodeState(typ byte, payload ...byte) ([]byte, error) {
	if len(payload) > MaxStatePayload {
		return nil, fmt.Errorf("%w: state payload %d bytes, max %d", ErrFrameTooLarge, len(payload), MaxStatePayload)
	}
	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, typ)
	return append(buf, payload...), nil
}

// MustState is EncodeState for payloads whose size is fixed at the call site.
func MustState(typ byte, payload ...byte) []byte {
	b, err := EncodeState(typ, payload...)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeState parses a notification frame. The returned payload aliases b.
func DecodeState(b []byte) (State, error) {
	if len(b) == 0 {
		return State{}, fmt.Errorf("%w: empty state frame", ErrFrameTooShort)
	}
	if len(b)-1 > MaxStatePayload {
		return State{}, fmt.Errorf("%w: state frame %d bytes, max %d", ErrFrameTooLarge, len(b), MTU)
	}
	return State{Type: b[0], Payload: b[1:]}, nil
}

// LegacyError builds the 4-byte error frame sent by P1.
func LegacyError(cmd, code byte) []byte {
	return EncodeFixed(TypeError, cmd, code, 0x01)
}

// CommandError builds the error frame P2 sends for a specific command.
func CommandError(cmd, code byte) []byte {
	return MustState(TypeError, cmd, code)
}

// NotAuthenticated is the error frame P2 sends for gated commands.
func NotAuthenticated() []byte {
	return MustState(TypeError, ErrCodeNotAuthenticated)
}

// PutUint16 returns v as two big-endian bytes.
func PutUint16(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// Uint16 reads a big-endian uint16.
func Uint16(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}
