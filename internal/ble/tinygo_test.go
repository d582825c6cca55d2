package ble

import (
	"testing"
	"time"
)

func TestTinyGoConnectionLateDisconnectCallback(t *testing.T) {
	c := &tinyGoConnection{}
	c.fireDisconnect()
	c.fireDisconnect()

	fired := make(chan struct{}, 2)
	c.OnDisconnect(func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback registered after the drop never ran")
	}
	select {
	case <-fired:
		t.Fatal("callback ran twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTinyGoConnectionDisconnectCallback(t *testing.T) {
	c := &tinyGoConnection{}
	calls := 0
	c.OnDisconnect(func() { calls++ })
	c.fireDisconnect()
	c.fireDisconnect()
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}
