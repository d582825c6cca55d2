package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoServer hosts the peripheral service with tinygo-org/bluetooth
// (BlueZ on Linux).
type TinyGoServer struct {
	adapter *bluetooth.Adapter
	events  chan Event

	mu    sync.Mutex
	state bluetooth.Characteristic
	adv   *bluetooth.Advertisement
	links int
	done  chan struct{}
}

// NewTinyGoServer creates a peripheral server on the default adapter.
func NewTinyGoServer() *TinyGoServer {
	return &TinyGoServer{
		adapter: bluetooth.DefaultAdapter,
		events:  NewEventChan(),
		done:    make(chan struct{}),
	}
}

func (s *TinyGoServer) Start(ctx context.Context, id Identity) error {
	svcUUID, err := bluetooth.ParseUUID(id.ServiceUUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}
	cmdUUID, err := bluetooth.ParseUUID(id.CommandCharUUID)
	if err != nil {
		return fmt.Errorf("ble: parse command UUID: %w", err)
	}
	stateUUID, err := bluetooth.ParseUUID(id.StateCharUUID)
	if err != nil {
		return fmt.Errorf("ble: parse state UUID: %w", err)
	}

	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		s.mu.Lock()
		if connected {
			s.links++
		} else if s.links > 0 {
			s.links--
		}
		s.mu.Unlock()

		kind := EventDisconnect
		if connected {
			kind = EventConnect
		}
		s.emit(Event{Kind: kind, Peer: device.Address.String()})
	})

	s.mu.Lock()
	err = s.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:  cmdUUID,
				Flags: bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					data := make([]byte, len(value))
					copy(data, value)
					s.emit(Event{Kind: EventWrite, Data: data})
				},
			},
			{
				Handle: &s.state,
				UUID:   stateUUID,
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}

	adv := s.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    id.Name,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	s.mu.Lock()
	s.adv = adv
	s.mu.Unlock()
	slog.Info("[BLE] advertising", "name", id.Name, "service", id.ServiceUUID)

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return nil
}

func (s *TinyGoServer) Events() <-chan Event {
	return s.events
}

func (s *TinyGoServer) Notify(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links == 0 {
		return ErrNotConnected
	}
	if _, err := s.state.Write(data); err != nil {
		return fmt.Errorf("ble: notify: %w", err)
	}
	return nil
}

func (s *TinyGoServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	if s.adv != nil {
		return s.adv.Stop()
	}
	return nil
}

func (s *TinyGoServer) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

var _ Server = (*TinyGoServer)(nil)
