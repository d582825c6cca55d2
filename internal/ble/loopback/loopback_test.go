package loopback

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/blegate/internal/ble"
)

func nextEvent(t *testing.T, s *Server) ble.Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server event")
		return ble.Event{}
	}
}

func connect(t *testing.T, air *Air, id ble.Identity) ble.Connection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	a := air.Adapter()
	dev, err := a.Scan(ctx, func(d ble.Device) bool { return d.Name == id.Name })
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	conn, err := a.Connect(ctx, dev)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return conn
}

func TestWriteAndNotify(t *testing.T) {
	air := NewAir()
	srv := air.Server()
	if err := srv.Start(context.Background(), ble.P1Identity); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close()

	conn := connect(t, air, ble.P1Identity)
	if ev := nextEvent(t, srv); ev.Kind != ble.EventConnect {
		t.Fatalf("first event = %v, want connect", ev.Kind)
	}

	cmd, err := conn.DiscoverCharacteristic(ble.P1Identity.ServiceUUID, ble.P1Identity.CommandCharUUID)
	if err != nil {
		t.Fatalf("DiscoverCharacteristic(cmd) error = %v", err)
	}
	state, err := conn.DiscoverCharacteristic(ble.P1Identity.ServiceUUID, ble.P1Identity.StateCharUUID)
	if err != nil {
		t.Fatalf("DiscoverCharacteristic(state) error = %v", err)
	}

	got := make(chan []byte, 2)
	if err := state.Subscribe(func(b []byte) { got <- b }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := cmd.Write([]byte{0x02, 0x00, 0x00, 0x00}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	ev := nextEvent(t, srv)
	if ev.Kind != ble.EventWrite || !bytes.Equal(ev.Data, []byte{0x02, 0x00, 0x00, 0x00}) {
		t.Errorf("write event = %v %x", ev.Kind, ev.Data)
	}

	if err := srv.Notify([]byte{0x02, 0x00, 0x64, 0x00}); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	select {
	case b := <-got:
		if !bytes.Equal(b, []byte{0x02, 0x00, 0x64, 0x00}) {
			t.Errorf("notification = %x", b)
		}
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestWrongServiceNotFound(t *testing.T) {
	air := NewAir()
	srv := air.Server()
	_ = srv.Start(context.Background(), ble.P1Identity)
	defer srv.Close()

	conn := connect(t, air, ble.P1Identity)
	_, err := conn.DiscoverCharacteristic(ble.P2Identity.ServiceUUID, ble.P2Identity.CommandCharUUID)
	if !errors.Is(err, ble.ErrNotFound) {
		t.Errorf("DiscoverCharacteristic() error = %v, want ErrNotFound", err)
	}
}

func TestDropNotifiesBothEnds(t *testing.T) {
	air := NewAir()
	srv := air.Server()
	_ = srv.Start(context.Background(), ble.P2Identity)
	defer srv.Close()

	conn := connect(t, air, ble.P2Identity)
	nextEvent(t, srv) // connect

	dropped := make(chan struct{})
	conn.OnDisconnect(func() { close(dropped) })

	if !air.Drop(ble.P2Identity.Name) {
		t.Fatal("Drop() = false, want true")
	}
	if ev := nextEvent(t, srv); ev.Kind != ble.EventDisconnect {
		t.Errorf("event = %v, want disconnect", ev.Kind)
	}
	select {
	case <-dropped:
	case <-time.After(time.Second):
		t.Fatal("central disconnect callback not invoked")
	}
	if err := srv.Notify([]byte{0x01}); !errors.Is(err, ble.ErrNotConnected) {
		t.Errorf("Notify() after drop error = %v, want ErrNotConnected", err)
	}
	if air.Drop(ble.P2Identity.Name) {
		t.Error("second Drop() = true, want false")
	}
}

func TestConnectedServerStopsAdvertising(t *testing.T) {
	air := NewAir()
	srv := air.Server()
	_ = srv.Start(context.Background(), ble.P1Identity)
	defer srv.Close()
	connect(t, air, ble.P1Identity)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := air.Adapter().Scan(ctx, func(d ble.Device) bool { return d.Name == ble.P1Identity.Name })
	if !errors.Is(err, ble.ErrNoMatch) {
		t.Errorf("Scan() error = %v, want ErrNoMatch", err)
	}
}

func TestCloseStopsAdvertising(t *testing.T) {
	air := NewAir()
	ctx, cancel := context.WithCancel(context.Background())
	srv := air.Server()
	_ = srv.Start(ctx, ble.P1Identity)
	cancel()

	deadline := time.Now().Add(time.Second)
	for len(air.advertising()) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("server still advertising after context cancel")
		}
		time.Sleep(time.Millisecond)
	}
}
