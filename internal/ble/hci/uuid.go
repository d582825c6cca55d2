package hci

import (
	"github.com/currantlabs/ble"
	"github.com/pkg/errors"
)

func parseUUID(s string) (ble.UUID, error) {
	u, err := ble.Parse(s)
	if err != nil {
		return nil, errors.Wrapf(err, "hci: parse uuid %q", s)
	}
	return u, nil
}
