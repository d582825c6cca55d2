package ble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ScanForDevices lists every advertisement seen during timeout, one entry
// per address, strongest signal first.
func ScanForDevices(adapter Adapter, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]Device)
	_, err := adapter.Scan(ctx, func(d Device) bool {
		mu.Lock()
		defer mu.Unlock()
		if prev, ok := seen[d.MAC]; !ok || prev.Name == "" {
			seen[d.MAC] = d
		}
		return false
	})
	if err != nil && !errors.Is(err, ErrNoMatch) {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	devices := make([]Device, 0, len(seen))
	for _, d := range seen {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].RSSI != devices[j].RSSI {
			return devices[i].RSSI > devices[j].RSSI
		}
		return devices[i].MAC < devices[j].MAC
	})
	return devices, nil
}

// KnownRole reports which peripheral role a device advertises as, if any.
func KnownRole(d Device) (Role, bool) {
	for _, r := range Roles {
		if d.Name == r.Identity().Name {
			return r, true
		}
	}
	return 0, false
}

// LooksLikeTarget flags devices whose name suggests an ESP32 or IoT board.
func LooksLikeTarget(d Device) bool {
	name := strings.ToUpper(d.Name)
	return strings.Contains(name, "ESP32") || strings.Contains(name, "IOT")
}
