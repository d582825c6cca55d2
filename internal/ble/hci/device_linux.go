// Package hci implements the transport boundary on a raw Linux HCI socket
// with currantlabs/ble, for hosts where BlueZ's D-Bus API is unavailable or
// undesired. It serves both the central and the peripheral role.
package hci

import (
	"sync"

	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/linux"
	"github.com/pkg/errors"
)

var (
	openOnce sync.Once
	openErr  error
)

// open claims the default HCI device once per process.
func open() error {
	openOnce.Do(func() {
		d, err := linux.NewDevice()
		if err != nil {
			openErr = errors.Wrap(err, "hci: open device")
			return
		}
		ble.SetDefaultDevice(d)
	})
	return openErr
}
