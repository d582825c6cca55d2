package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFixed(t *testing.T) {
	got := EncodeFixed(CmdSetMode, 0x02, 0, 0)
	want := []byte{0x01, 0x02, 0x00, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeFixed() = %x, want %x", got, want)
	}
}

func TestDecodeFixedPadsMissingParams(t *testing.T) {
	f, err := DecodeFixed([]byte{CmdSetBrightness, 80})
	if err != nil {
		t.Fatalf("DecodeFixed() error = %v", err)
	}
	if f.Cmd != CmdSetBrightness {
		t.Errorf("Cmd = 0x%02x, want 0x%02x", f.Cmd, CmdSetBrightness)
	}
	if f.Params != [3]byte{80, 0, 0} {
		t.Errorf("Params = %v, want [80 0 0]", f.Params)
	}
}

func TestDecodeFixedIgnoresExtraBytes(t *testing.T) {
	f, err := DecodeFixed([]byte{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatalf("DecodeFixed() error = %v", err)
	}
	if f.Params != [3]byte{2, 3, 4} {
		t.Errorf("Params = %v, want [2 3 4]", f.Params)
	}
}

func TestDecodeFixedTooShort(t *testing.T) {
	for _, in := range [][]byte{nil, {0x01}} {
		if _, err := DecodeFixed(in); !errors.Is(err, ErrFrameTooShort) {
			t.Errorf("DecodeFixed(%x) error = %v, want ErrFrameTooShort", in, err)
		}
	}
}

func TestVariableRoundTrip(t *testing.T) {
	for n := 0; n <= MaxPayload; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		enc, err := EncodeVariable(0x42, payload)
		if err != nil {
			t.Fatalf("EncodeVariable(len=%d) error = %v", n, err)
		}
		if len(enc) > MTU {
			t.Errorf("EncodeVariable(len=%d) produced %d bytes, exceeds MTU", n, len(enc))
		}
		dec, err := DecodeVariable(enc)
		if err != nil {
			t.Fatalf("DecodeVariable(len=%d) error = %v", n, err)
		}
		if dec.Cmd != 0x42 || !bytes.Equal(dec.Payload, payload) {
			t.Errorf("round trip len=%d = (%x, %x), want (42, %x)", n, dec.Cmd, dec.Payload, payload)
		}
	}
}

func TestEncodeVariableSizeBoundary(t *testing.T) {
	if _, err := EncodeVariable(0x01, make([]byte, 17)); err != nil {
		t.Errorf("EncodeVariable(17 bytes) error = %v, want nil", err)
	}
	if _, err := EncodeVariable(0x01, make([]byte, 18)); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("EncodeVariable(18 bytes) error = %v, want ErrFrameTooLarge", err)
	}
}

func TestEncodeVariableEmptyPayload(t *testing.T) {
	got, err := EncodeVariable(CmdLogout, nil)
	if err != nil {
		t.Fatalf("EncodeVariable() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x99, 0x00}) {
		t.Errorf("EncodeVariable(LOGOUT) = %x, want 9900", got)
	}
}

func TestDecodeVariableErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrFrameTooShort},
		{"one byte", []byte{0x01}, ErrFrameTooShort},
		{"truncated", []byte{0x01, 0x06, 0x00, 0x01}, ErrFrameTruncated},
		{"declared too large", append([]byte{0x01, 18}, make([]byte, 18)...), ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeVariable(tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodeVariable(%x) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}
}

func TestTruncatedIsTooShort(t *testing.T) {
	if !errors.Is(ErrFrameTruncated, ErrFrameTooShort) {
		t.Error("ErrFrameTruncated should wrap ErrFrameTooShort")
	}
}

func TestDecodeVariableIgnoresTrailingBytes(t *testing.T) {
	v, err := DecodeVariable([]byte{0x10, 0x01, 0x02, 0xEE, 0xEE})
	if err != nil {
		t.Fatalf("DecodeVariable() error = %v", err)
	}
	if !bytes.Equal(v.Payload, []byte{0x02}) {
		t.Errorf("Payload = %x, want 02", v.Payload)
	}
}

func TestEncodeState(t *testing.T) {
	if _, err := EncodeState(0x01, make([]byte, 19)...); err != nil {
		t.Errorf("EncodeState(19 bytes) error = %v", err)
	}
	if _, err := EncodeState(0x01, make([]byte, 20)...); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("EncodeState(20 bytes) error = %v, want ErrFrameTooLarge", err)
	}
	got, _ := EncodeState(0x01, 0x00, 0x01)
	if !bytes.Equal(got, []byte{0x01, 0x00, 0x01}) {
		t.Errorf("EncodeState() = %x, want 010001", got)
	}
}

func TestDecodeStateEmpty(t *testing.T) {
	if _, err := DecodeState(nil); !errors.Is(err, ErrFrameTooShort) {
		t.Errorf("DecodeState(nil) error = %v, want ErrFrameTooShort", err)
	}
}

func TestErrorFrames(t *testing.T) {
	if got := LegacyError(0x09, ErrCodeUnknownCommand); !bytes.Equal(got, []byte{0xFF, 0x09, 0xE0, 0x01}) {
		t.Errorf("LegacyError() = %x, want ff09e001", got)
	}
	if got := CommandError(0x30, ErrCodeUnknownCommand); !bytes.Equal(got, []byte{0xFF, 0x30, 0xE0}) {
		t.Errorf("CommandError() = %x, want ff30e0", got)
	}
	if got := NotAuthenticated(); !bytes.Equal(got, []byte{0xFF, 0xE1}) {
		t.Errorf("NotAuthenticated() = %x, want ffe1", got)
	}
}
