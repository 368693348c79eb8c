package types

import (
	"fmt"
	"time"
)

// Role is the logical identity a device takes after the handshake.
type Role int

const (
	RoleUnassigned Role = 0
	RoleButton1    Role = 1
	RoleButton2    Role = 2
	RoleButton3    Role = 3
	RoleButton4    Role = 4
	RoleCadence    Role = 5
)

// ButtonCount is the number of button roles.
const ButtonCount = 4

// ButtonRoles lists the button roles in ascending order.
var ButtonRoles = []Role{RoleButton1, RoleButton2, RoleButton3, RoleButton4}

func (r Role) IsButton() bool {
	return r >= RoleButton1 && r <= RoleButton4
}

func (r Role) String() string {
	switch {
	case r == RoleUnassigned:
		return "unassigned"
	case r == RoleCadence:
		return "cadence"
	case r.IsButton():
		return fmt.Sprintf("button%d", int(r))
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ConnState follows Discovered -> Opening -> Open -> Identified -> Closed.
type ConnState int

const (
	StateDiscovered ConnState = iota
	StateOpening
	StateOpen
	StateIdentified
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateIdentified:
		return "identified"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// PortCandidate is a serial port that passed the scanner heuristics.
type PortCandidate struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"is_usb"`
	VID     string `json:"vid"`
	PID     string `json:"pid"`
	Product string `json:"product"`
	Serial  string `json:"serial"`
	Reason  string `json:"reason"` // which heuristic matched
}

// ButtonInfo describes a button role: color and position labels plus the current pressed state.
type ButtonInfo struct {
	Role     Role   `json:"role"`
	Color    string `json:"color"`
	Position string `json:"position"`
	Pressed  bool   `json:"pressed"`
}

// LedState holds the optimistic value (On) and the device confirmed value (Confirmed).
type LedState struct {
	Role      Role `json:"role"`
	On        bool `json:"on"`
	Confirmed bool `json:"confirmed"`
}

type CadenceSample struct {
	Count     int64     `json:"count"`
	RPM       int64     `json:"rpm"`
	Timestamp int64     `json:"timestamp"` // device clock, as sent
	Received  time.Time `json:"received"`
}

type DeviceStatus struct {
	ID           string    `json:"id"`
	Port         string    `json:"port"`
	State        string    `json:"state"`
	Role         string    `json:"role"`
	LastActivity time.Time `json:"last_activity"`
}

type ControllerStatus struct {
	Devices []DeviceStatus `json:"devices"`
	Buttons []ButtonInfo   `json:"buttons"`
	Leds    []LedState     `json:"leds"`
	Cadence CadenceSample  `json:"cadence"`
}

type LogMessage struct {
	Time    string `json:"time"`
	Message string `json:"message"`
	Type    string `json:"type"` // component: "devices", "registry", "leds", "system", ...
	Level   string `json:"level"`
}
