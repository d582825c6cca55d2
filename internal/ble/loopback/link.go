package loopback

import (
	"fmt"
	"sync"

	"github.com/chaz8081/blegate/internal/ble"
)

// link is one central-peripheral connection. It is the ble.Connection seen
// by the central. Notifications are queued and delivered in order by a
// dedicated goroutine.
type link struct {
	server *Server
	notes  chan []byte
	done   chan struct{}

	mu           sync.Mutex
	subscriber   func([]byte)
	disconnectCb func()
	closed       bool
}

func newLink(s *Server) *link {
	l := &link{
		server: s,
		notes:  make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go l.pump()
	return l
}

func (l *link) pump() {
	for {
		select {
		case data := <-l.notes:
			l.mu.Lock()
			cb := l.subscriber
			l.mu.Unlock()
			if cb != nil {
				cb(data)
			}
		case <-l.done:
			return
		}
	}
}

func (l *link) notify(data []byte) error {
	select {
	case l.notes <- data:
		return nil
	case <-l.done:
		return ble.ErrNotConnected
	}
}

func (l *link) DiscoverCharacteristic(serviceUUID, charUUID string) (ble.Characteristic, error) {
	id := l.server.identity()
	if serviceUUID != id.ServiceUUID {
		return nil, fmt.Errorf("loopback: service %s: %w", serviceUUID, ble.ErrNotFound)
	}
	switch charUUID {
	case id.CommandCharUUID:
		return &characteristic{link: l, command: true}, nil
	case id.StateCharUUID:
		return &characteristic{link: l}, nil
	}
	return nil, fmt.Errorf("loopback: characteristic %s: %w", charUUID, ble.ErrNotFound)
}

func (l *link) Disconnect() error {
	l.close()
	return nil
}

// OnDisconnect registers cb. If the link is already down cb runs at once.
func (l *link) OnDisconnect(cb func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnectCb = cb
	if l.closed && cb != nil {
		go cb()
	}
}

func (l *link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// close tears the link down once and notifies both ends.
func (l *link) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cb := l.disconnectCb
	close(l.done)
	l.mu.Unlock()

	l.server.detach(l)
	l.server.emit(ble.Event{Kind: ble.EventDisconnect, Peer: "central"})
	if cb != nil {
		go cb()
	}
}

type characteristic struct {
	link    *link
	command bool
}

func (c *characteristic) Write(data []byte) error {
	if !c.command {
		return fmt.Errorf("loopback: state characteristic is not writable")
	}
	if c.link.isClosed() {
		return ble.ErrNotConnected
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.link.server.emit(ble.Event{Kind: ble.EventWrite, Peer: "central", Data: cp})
	return nil
}

func (c *characteristic) Subscribe(cb func([]byte)) error {
	if c.command {
		return fmt.Errorf("loopback: command characteristic does not notify")
	}
	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	c.link.subscriber = cb
	return nil
}
