// Package loopback connects a central Adapter to peripheral Servers inside
// one process. Servers advertise by starting; the adapter scans, connects,
// writes and subscribes as it would over the air. It backs the simulator
// and end-to-end tests.
package loopback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chaz8081/blegate/internal/ble"
)

// advertInterval is how often a scanning adapter re-reads advertisements.
const advertInterval = 10 * time.Millisecond

// Air is the shared medium servers advertise on.
type Air struct {
	mu      sync.Mutex
	servers map[string]*Server // keyed by address
	next    int
}

// NewAir returns an empty medium.
func NewAir() *Air {
	return &Air{servers: make(map[string]*Server)}
}

// Server returns a new peripheral server on this medium.
func (a *Air) Server() *Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	return &Server{
		air:    a,
		addr:   fmt.Sprintf("02:00:00:00:00:%02X", a.next),
		events: ble.NewEventChan(),
		done:   make(chan struct{}),
	}
}

// Adapter returns a central adapter on this medium.
func (a *Air) Adapter() *Adapter {
	return &Adapter{air: a}
}

// Drop severs the link of the server advertising name, as if the radio
// link was lost. Both ends observe a disconnect. It reports whether a link
// was dropped.
func (a *Air) Drop(name string) bool {
	for _, s := range a.advertising() {
		if s.identity().Name != name {
			continue
		}
		if l := s.currentLink(); l != nil {
			l.close()
			return true
		}
	}
	return false
}

// advertising returns started servers in address order.
func (a *Air) advertising() []*Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Server, 0, len(a.servers))
	for _, s := range a.servers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

func (a *Air) lookup(addr string) *Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.servers[addr]
}

func (a *Air) register(s *Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.servers[s.addr] = s
}

func (a *Air) unregister(s *Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.servers, s.addr)
}

// Server is an in-memory ble.Server.
type Server struct {
	air    *Air
	addr   string
	events chan ble.Event

	mu      sync.Mutex
	id      ble.Identity
	started bool
	link    *link
	done    chan struct{}
	closed  bool
}

func (s *Server) Start(ctx context.Context, id ble.Identity) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("loopback: server %s already started", s.addr)
	}
	s.id = id
	s.started = true
	s.mu.Unlock()

	s.air.register(s)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return nil
}

func (s *Server) Events() <-chan ble.Event {
	return s.events
}

func (s *Server) Notify(data []byte) error {
	l := s.currentLink()
	if l == nil {
		return ble.ErrNotConnected
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return l.notify(cp)
}

func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.link
	close(s.done)
	s.mu.Unlock()

	s.air.unregister(s)
	if l != nil {
		l.close()
	}
	return nil
}

func (s *Server) identity() ble.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Server) currentLink() *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// attach binds a new link, failing if one is already up.
func (s *Server) attach(l *link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("loopback: %s: %w", s.addr, ble.ErrNotConnected)
	}
	if s.link != nil {
		return fmt.Errorf("loopback: %s already has a central", s.addr)
	}
	s.link = l
	return nil
}

func (s *Server) detach(l *link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == l {
		s.link = nil
	}
}

func (s *Server) emit(ev ble.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

var _ ble.Server = (*Server)(nil)

// Adapter is an in-memory ble.Adapter.
type Adapter struct {
	air *Air
}

func (a *Adapter) Enable() error { return nil }

func (a *Adapter) Scan(ctx context.Context, match func(ble.Device) bool) (ble.Device, error) {
	ticker := time.NewTicker(advertInterval)
	defer ticker.Stop()
	for {
		for _, s := range a.air.advertising() {
			if s.currentLink() != nil {
				continue // connected peripherals stop advertising
			}
			d := ble.Device{Name: s.identity().Name, MAC: s.addr, RSSI: -40}
			if match(d) {
				return d, nil
			}
		}
		select {
		case <-ctx.Done():
			return ble.Device{}, ble.ErrNoMatch
		case <-ticker.C:
		}
	}
}

func (a *Adapter) Connect(ctx context.Context, dev ble.Device) (ble.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loopback: connect to %s: %w", dev.MAC, err)
	}
	s := a.air.lookup(dev.MAC)
	if s == nil {
		return nil, fmt.Errorf("loopback: connect to %s: %w", dev.MAC, ble.ErrNotFound)
	}
	l := newLink(s)
	if err := s.attach(l); err != nil {
		close(l.done)
		return nil, err
	}
	s.emit(ble.Event{Kind: ble.EventConnect, Peer: "central"})
	return l, nil
}

var _ ble.Adapter = (*Adapter)(nil)
