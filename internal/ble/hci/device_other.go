//go:build !linux

package hci

import "github.com/pkg/errors"

var errUnsupported = errors.New("hci: raw HCI sockets require linux")

func open() error {
	return errUnsupported
}
