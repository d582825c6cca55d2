package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Hex renders a frame as space separated upper-case bytes.
func Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

// ParseHex accepts hex with optional spaces, colons, dashes or a 0x prefix.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("protocol: parse hex: %w", err)
	}
	return b, nil
}

// Framing selects how Describe interprets a frame.
type Framing int

const (
	FramingAuto Framing = iota
	FramingFixed
	FramingVariable
	FramingState
)

// ParseFraming maps a name to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "", "auto":
		return FramingAuto, nil
	case "fixed":
		return FramingFixed, nil
	case "variable":
		return FramingVariable, nil
	case "state":
		return FramingState, nil
	}
	return FramingAuto, fmt.Errorf("protocol: unknown framing %q", s)
}

// Guess picks a framing for an unlabelled frame. A frame whose second byte
// matches its remaining length is treated as variable, 4-byte frames as
// fixed, anything else as a state frame.
func Guess(b []byte) Framing {
	switch {
	case len(b) >= 2 && int(b[1]) == len(b)-2 && b[0] != TypeError && b[0] != TypeTelemetry:
		return FramingVariable
	case len(b) == FixedFrameSize && b[0] != TypeTelemetry:
		return FramingFixed
	default:
		return FramingState
	}
}

// Describe renders a frame for logs.
func Describe(b []byte, f Framing) (string, error) {
	if f == FramingAuto {
		f = Guess(b)
	}
	switch f {
	case FramingFixed:
		return describeFixed(b)
	case FramingVariable:
		return describeVariable(b)
	default:
		return describeState(b)
	}
}

func describeFixed(b []byte) (string, error) {
	fr, err := DecodeFixed(b)
	if err != nil {
		return "", err
	}
	if fr.Cmd == TypeError {
		return fmt.Sprintf("fixed ERROR cmd=0x%02X %s", fr.Params[0], ErrorName(fr.Params[1])), nil
	}
	return fmt.Sprintf("fixed %s(0x%02X) params=[%d %d %d]",
		LegacyName(fr.Cmd), fr.Cmd, fr.Params[0], fr.Params[1], fr.Params[2]), nil
}

func describeVariable(b []byte) (string, error) {
	fr, err := DecodeVariable(b)
	if err != nil {
		return "", err
	}
	s := fmt.Sprintf("variable %s(0x%02X) len=%d", VariableName(fr.Cmd), fr.Cmd, len(fr.Payload))
	switch {
	case fr.Cmd == CmdAuthPIN && len(fr.Payload) >= 2+CredentialSize:
		s += fmt.Sprintf(" user=%d credential=%s", Uint16(fr.Payload[0], fr.Payload[1]), Hex(fr.Payload[2:2+CredentialSize]))
	case len(fr.Payload) > 0:
		s += " data=" + Hex(fr.Payload)
	}
	return s, nil
}

func describeState(b []byte) (string, error) {
	st, err := DecodeState(b)
	if err != nil {
		return "", err
	}
	if r, err := DecodeTelemetry(b); err == nil {
		return "telemetry " + r.String(), nil
	} else if !errors.Is(err, ErrUnknownTelemetry) {
		return "", err
	}
	if st.Type == TypeError {
		switch len(st.Payload) {
		case 0:
			return "error", nil
		case 1:
			return "error " + ErrorName(st.Payload[0]), nil
		default:
			return fmt.Sprintf("error cmd=0x%02X %s", st.Payload[0], ErrorName(st.Payload[1])), nil
		}
	}
	return fmt.Sprintf("state type=0x%02X payload=[%s]", st.Type, Hex(st.Payload)), nil
}
