package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameTooShort is returned when a frame has fewer bytes than its
	// framing requires.
	ErrFrameTooShort = errors.New("protocol: frame too short")

	// ErrFrameTooLarge is returned when a payload does not fit the 20-byte
	// transport MTU.
	ErrFrameTooLarge = errors.New("protocol: frame too large")

	// ErrFrameTruncated is returned when a variable frame declares more
	// payload bytes than it carries. It wraps ErrFrameTooShort.
	ErrFrameTruncated = fmt.Errorf("%w: declared length exceeds data", ErrFrameTooShort)

	// ErrInvalidPIN is returned by PackPIN for anything other than 4-8
	// decimal digits.
	ErrInvalidPIN = errors.New("protocol: invalid PIN")

	// ErrUnknownTelemetry is returned by DecodeTelemetry for frames that
	// do not carry a sensor reading.
	ErrUnknownTelemetry = errors.New("protocol: not a telemetry frame")
)
