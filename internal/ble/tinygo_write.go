//go:build darwin || windows

package ble

// tinyGoWriteWithResponse reports whether command writes are acknowledged
// by the peripheral.
const tinyGoWriteWithResponse = true

// write uses a write request; the command characteristic of the real
// firmware does not accept write-without-response.
func (c *tinyGoCharacteristic) write(data []byte) error {
	_, err := c.char.Write(data)
	return err
}
