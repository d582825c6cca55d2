package hci

import (
	"context"
	"log/slog"
	"sync"

	"github.com/currantlabs/ble"
	"github.com/pkg/errors"

	transport "github.com/chaz8081/blegate/internal/ble"
)

// Server is the peripheral side of the HCI backend. The stack does not
// report connections to a GATT server directly, so a central counts as
// connected from its subscription to the state characteristic until that
// subscription ends.
type Server struct {
	events chan transport.Event

	mu       sync.Mutex
	notifier ble.Notifier
	done     chan struct{}
	closed   bool
}

// NewServer returns an HCI-backed peripheral server.
func NewServer() *Server {
	return &Server{
		events: transport.NewEventChan(),
		done:   make(chan struct{}),
	}
}

func (s *Server) Start(ctx context.Context, id transport.Identity) error {
	if err := open(); err != nil {
		return err
	}
	su, err := parseUUID(id.ServiceUUID)
	if err != nil {
		return err
	}
	cu, err := parseUUID(id.CommandCharUUID)
	if err != nil {
		return err
	}
	stu, err := parseUUID(id.StateCharUUID)
	if err != nil {
		return err
	}

	svc := ble.NewService(su)

	cmd := ble.NewCharacteristic(cu)
	cmd.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		data := make([]byte, len(req.Data()))
		copy(data, req.Data())
		s.emit(transport.Event{Kind: transport.EventWrite, Peer: req.Conn().RemoteAddr().String(), Data: data})
	}))
	svc.AddCharacteristic(cmd)

	state := ble.NewCharacteristic(stu)
	state.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
		peer := req.Conn().RemoteAddr().String()
		s.setNotifier(n)
		s.emit(transport.Event{Kind: transport.EventConnect, Peer: peer})
		select {
		case <-n.Context().Done():
		case <-s.done:
		}
		s.clearNotifier(n)
		s.emit(transport.Event{Kind: transport.EventDisconnect, Peer: peer})
	}))
	svc.AddCharacteristic(state)

	if err := ble.AddService(svc); err != nil {
		return errors.Wrap(err, "hci: add service")
	}

	go func() {
		slog.Info("[BLE] advertising", "name", id.Name, "service", id.ServiceUUID, "backend", "hci")
		if err := ble.AdvertiseNameAndServices(ctx, id.Name, su); err != nil && ctx.Err() == nil {
			slog.Error("[BLE] advertise failed", "error", err)
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return nil
}

func (s *Server) Events() <-chan transport.Event {
	return s.events
}

func (s *Server) Notify(data []byte) error {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n == nil {
		return transport.ErrNotConnected
	}
	if _, err := n.Write(data); err != nil {
		return errors.Wrap(err, "hci: notify")
	}
	return nil
}

func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

func (s *Server) setNotifier(n ble.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *Server) clearNotifier(n ble.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifier == n {
		s.notifier = nil
	}
}

func (s *Server) emit(ev transport.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

var _ transport.Server = (*Server)(nil)
