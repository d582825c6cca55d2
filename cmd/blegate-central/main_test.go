package main

import (
	"testing"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/ble/hci"
)

func TestNewAdapter(t *testing.T) {
	a, err := newAdapter("tinygo")
	if err != nil {
		t.Fatalf("newAdapter(tinygo): %v", err)
	}
	if _, ok := a.(*ble.TinyGoAdapter); !ok {
		t.Errorf("newAdapter(tinygo) = %T, want *ble.TinyGoAdapter", a)
	}

	a, err = newAdapter("hci")
	if err != nil {
		t.Fatalf("newAdapter(hci): %v", err)
	}
	if _, ok := a.(*hci.Adapter); !ok {
		t.Errorf("newAdapter(hci) = %T, want *hci.Adapter", a)
	}

	if _, err := newAdapter("usb"); err == nil {
		t.Error("newAdapter(usb) should fail")
	}
}
