package ble

import (
	"fmt"
	"strings"
)

// Role names one of the two peripherals.
type Role int

const (
	// RoleP1 is the open sensor peripheral speaking fixed 4-byte frames.
	RoleP1 Role = iota + 1
	// RoleP2 is the PIN-gated wearable speaking CMD,LEN,DATA frames.
	RoleP2
)

// Roles lists every role in discovery order.
var Roles = []Role{RoleP1, RoleP2}

func (r Role) String() string {
	switch r {
	case RoleP1:
		return "P1"
	case RoleP2:
		return "P2"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole accepts "p1"/"p2" in any case.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p1":
		return RoleP1, nil
	case "p2":
		return RoleP2, nil
	}
	return 0, fmt.Errorf("ble: unknown role %q", s)
}

// Identity is the static GATT layout a peripheral advertises.
type Identity struct {
	Name            string
	ServiceUUID     string
	CommandCharUUID string
	StateCharUUID   string
}

// Identities used by the reference firmware.
var (
	P1Identity = Identity{
		Name:            "ESP32_P1",
		ServiceUUID:     "4fafc201-1fb5-459e-8fcc-c5c9c331914b",
		CommandCharUUID: "beb5483e-36e1-4688-b7f5-ea07361b26a8",
		StateCharUUID:   "beb5483f-36e1-4688-b7f5-ea07361b26a8",
	}
	P2Identity = Identity{
		Name:            "ESP32_P2",
		ServiceUUID:     "5fafc301-2fb5-459e-8fcc-c5c9c331915c",
		CommandCharUUID: "ceb5483e-46e1-4688-b7f5-ea07361b27a9",
		StateCharUUID:   "ceb5483f-46e1-4688-b7f5-ea07361b27a9",
	}
)

// Identity returns the default identity of r.
func (r Role) Identity() Identity {
	if r == RoleP2 {
		return P2Identity
	}
	return P1Identity
}

// WithName returns a copy of id advertising name instead, unless name is empty.
func (id Identity) WithName(name string) Identity {
	if name != "" {
		id.Name = name
	}
	return id
}
