package ble

const tinyGoWriteWithResponse = false

// write sends a write command. BlueZ support in tinygo only exposes
// write-without-response, which the real firmware's command
// characteristic rejects; drive real peripherals with transport: hci.
func (c *tinyGoCharacteristic) write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}
