package protocol

import "fmt"

// CredentialSize is the number of credential bytes carried by AUTH_PIN.
const CredentialSize = 4

// PackPIN packs a decimal PIN two digits per byte, high nibble first, and
// zero-pads the result to CredentialSize bytes. "123456" packs to
// 12 34 56 00. The packed form is the plaintext credential on the wire.
func PackPIN(pin string) ([CredentialSize]byte, error) {
	var out [CredentialSize]byte
	if len(pin) < 4 || len(pin) > 2*CredentialSize {
		return out, fmt.Errorf("%w: need 4-%d digits, got %d", ErrInvalidPIN, 2*CredentialSize, len(pin))
	}
	for i := 0; i < len(pin); i++ {
		c := pin[i]
		if c < '0' || c > '9' {
			return out, fmt.Errorf("%w: non-digit %q at %d", ErrInvalidPIN, c, i)
		}
		d := c - '0'
		if i%2 == 0 {
			out[i/2] = d << 4
		} else {
			out[i/2] |= d
		}
	}
	return out, nil
}

// AuthPayload builds the AUTH_PIN payload: user id (big-endian) followed
// by the packed credential.
func AuthPayload(userID uint16, credential [CredentialSize]byte) []byte {
	hi, lo := PutUint16(userID)
	return append([]byte{hi, lo}, credential[:]...)
}
