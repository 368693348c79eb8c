// Package protocol decodes the line protocol spoken by the button and bike firmware
// and encodes the host commands sent back to it.
//
// Device lines:
//
//	BUTTON_<n>_<COLOR>_READY
//	BUTTON_<n>_PRESSED | BUTTON_<n>_RELEASED
//	LED_<n>_<ON|OFF|TOGGLE>_CONFIRMED
//	PONG_<n> | PONG
//	BIKE_SENSOR_READY
//	BIKE_REV:<count>:<rpm>:<timestamp>
//
// Anything else decodes to KindUnrecognized. Decode never fails.
package protocol

import (
	"math"
	"strconv"
	"strings"

	"bike-arcade-controller/config"
	"bike-arcade-controller/types"
)

type Kind int

const (
	KindUnrecognized Kind = iota
	KindIdentifyEcho
	KindReady
	KindButtonPressed
	KindButtonReleased
	KindLedConfirmed
	KindPong
	KindCadenceSample
)

func (k Kind) String() string {
	switch k {
	case KindIdentifyEcho:
		return "identify_echo"
	case KindReady:
		return "ready"
	case KindButtonPressed:
		return "button_pressed"
	case KindButtonReleased:
		return "button_released"
	case KindLedConfirmed:
		return "led_confirmed"
	case KindPong:
		return "pong"
	case KindCadenceSample:
		return "cadence_sample"
	}
	return "unrecognized"
}

// LedTarget is the state a LED confirmation reports.
type LedTarget int

const (
	LedOff LedTarget = iota
	LedOn
	LedToggle
)

func (t LedTarget) String() string {
	switch t {
	case LedOn:
		return "ON"
	case LedToggle:
		return "TOGGLE"
	}
	return "OFF"
}

// Message is one decoded device line. Which fields are meaningful depends on Kind.
type Message struct {
	Kind  Kind
	Role  types.Role // RoleUnassigned for a bare PONG
	Color string     // KindReady, buttons only
	Led   LedTarget  // KindLedConfirmed

	Count     int64 // KindCadenceSample
	RPM       int64
	Timestamp int64

	Raw string
}

const (
	fieldSep   = "_"
	cadenceSep = ":"

	prefixButton  = "BUTTON"
	prefixLed     = "LED"
	prefixPong    = "PONG"
	prefixBikeRev = "BIKE_REV"

	lineBikeReady = "BIKE_SENSOR_READY"
)

// Decode parses a single line with its terminator already stripped.
func Decode(line string) Message {
	raw := strings.TrimSpace(line)
	msg := Message{Kind: KindUnrecognized, Raw: raw}
	if raw == "" {
		return msg
	}

	upper := strings.ToUpper(raw)

	switch {
	case upper == config.CMD_IDENTIFY:
		msg.Kind = KindIdentifyEcho
		return msg
	case upper == lineBikeReady:
		msg.Kind = KindReady
		msg.Role = types.RoleCadence
		return msg
	case upper == prefixPong:
		msg.Kind = KindPong
		return msg
	case strings.HasPrefix(upper, prefixBikeRev+cadenceSep):
		return decodeCadence(upper, msg)
	}

	fields := strings.Split(upper, fieldSep)
	switch fields[0] {
	case prefixButton:
		return decodeButton(fields, msg)
	case prefixLed:
		return decodeLed(fields, msg)
	case prefixPong:
		if len(fields) != 2 {
			return msg
		}
		role, ok := parseButtonRole(fields[1])
		if !ok {
			return msg
		}
		msg.Kind = KindPong
		msg.Role = role
	}
	return msg
}

func decodeButton(fields []string, msg Message) Message {
	if len(fields) < 3 {
		return msg
	}
	role, ok := parseButtonRole(fields[1])
	if !ok {
		return msg
	}

	switch {
	case len(fields) == 3 && fields[2] == "PRESSED":
		msg.Kind = KindButtonPressed
	case len(fields) == 3 && fields[2] == "RELEASED":
		msg.Kind = KindButtonReleased
	case len(fields) >= 4 && fields[len(fields)-1] == "READY":
		// colors may themselves contain the separator, e.g. LIGHT_BLUE
		msg.Kind = KindReady
		msg.Color = strings.Join(fields[2:len(fields)-1], fieldSep)
	default:
		return msg
	}
	msg.Role = role
	return msg
}

func decodeLed(fields []string, msg Message) Message {
	if len(fields) != 4 || fields[3] != "CONFIRMED" {
		return msg
	}
	role, ok := parseButtonRole(fields[1])
	if !ok {
		return msg
	}

	switch fields[2] {
	case "ON":
		msg.Led = LedOn
	case "OFF":
		msg.Led = LedOff
	case "TOGGLE":
		msg.Led = LedToggle
	default:
		return msg
	}
	msg.Kind = KindLedConfirmed
	msg.Role = role
	return msg
}

func decodeCadence(line string, msg Message) Message {
	parts := strings.Split(line, cadenceSep)
	if len(parts) != 4 {
		return msg
	}

	values := make([]int64, 3)
	for i, p := range parts[1:] {
		v, ok := parseNumber(p)
		if !ok {
			return msg
		}
		values[i] = v
	}

	msg.Kind = KindCadenceSample
	msg.Role = types.RoleCadence
	msg.Count, msg.RPM, msg.Timestamp = values[0], values[1], values[2]
	return msg
}

// parseNumber accepts integers and decimals (truncated); NaN, infinities and decimals
// outside the int64 range are rejected.
// Negative values are passed through, range checks belong to the consumer.
func parseNumber(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func parseButtonRole(s string) (types.Role, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return types.RoleUnassigned, false
	}
	role := types.Role(n)
	if !role.IsButton() {
		return types.RoleUnassigned, false
	}
	return role, true
}

// Encode appends the line terminator to a host command.
func Encode(command string) []byte {
	return []byte(command + config.LINE_TERMINATOR)
}

// LedCommand returns the command that switches a button LED.
func LedCommand(on bool) string {
	if on {
		return config.CMD_LED_ON
	}
	return config.CMD_LED_OFF
}

// GameModeCommand returns the bike sensor game mode command.
func GameModeCommand(on bool) string {
	if on {
		return config.CMD_GAME_MODE_ON
	}
	return config.CMD_GAME_MODE_OFF
}
