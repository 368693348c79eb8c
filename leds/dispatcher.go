package leds

import (
	"sync"
	"time"

	"bike-arcade-controller/events"
	"bike-arcade-controller/metrics"
	"bike-arcade-controller/protocol"
	"bike-arcade-controller/registry"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
)

// DeviceLookup finds the live device holding a role.
type DeviceLookup interface {
	Lookup(role types.Role) (registry.Device, bool)
}

type Publisher interface {
	Publish(ev events.Event)
}

// Dispatcher sends LED commands to the button devices and tracks their state.
// On is set when the command is issued, Confirmed when the device acknowledges it;
// the two can disagree for one round trip.
type Dispatcher struct {
	mu   sync.Mutex
	leds map[types.Role]*types.LedState

	devices DeviceLookup
	pub     Publisher
	log     *logrus.Entry
	metrics *metrics.Metrics
}

func NewDispatcher(devices DeviceLookup, pub Publisher, log *logrus.Entry, m *metrics.Metrics) *Dispatcher {
	d := &Dispatcher{
		leds:    make(map[types.Role]*types.LedState, types.ButtonCount),
		devices: devices,
		pub:     pub,
		log:     log,
		metrics: m,
	}
	for _, role := range types.ButtonRoles {
		d.leds[role] = &types.LedState{Role: role}
	}
	return d
}

// SetRole switches the LED of one button. It returns false, without side effects, when
// no live device holds the role, and false when the command could not be queued.
func (d *Dispatcher) SetRole(role types.Role, on bool) bool {
	if !role.IsButton() {
		return false
	}
	dev, ok := d.devices.Lookup(role)
	if !ok {
		d.log.WithField("role", role.String()).Debug("no device for LED command")
		return false
	}

	d.mu.Lock()
	prev := d.leds[role].On
	d.leds[role].On = on
	d.mu.Unlock()

	if err := dev.Send(protocol.LedCommand(on)); err != nil {
		d.mu.Lock()
		d.leds[role].On = prev
		d.mu.Unlock()
		d.log.WithField("role", role.String()).WithError(err).Warn("LED command not sent")
		return false
	}
	d.metrics.LedCommand(role.String(), on)
	return true
}

// SetAll switches every button LED and returns how many commands went out.
func (d *Dispatcher) SetAll(on bool) int {
	sent := 0
	for _, role := range types.ButtonRoles {
		if d.SetRole(role, on) {
			sent++
		}
	}
	return sent
}

// Confirm applies a device acknowledgement. TOGGLE flips the confirmed value.
func (d *Dispatcher) Confirm(role types.Role, target protocol.LedTarget) (types.LedState, bool) {
	d.mu.Lock()
	led, ok := d.leds[role]
	if !ok {
		d.mu.Unlock()
		return types.LedState{}, false
	}
	switch target {
	case protocol.LedOn:
		led.Confirmed = true
	case protocol.LedOff:
		led.Confirmed = false
	case protocol.LedToggle:
		led.Confirmed = !led.Confirmed
	}
	state := *led
	d.mu.Unlock()

	if state.Confirmed != state.On {
		d.log.WithField("role", role.String()).WithField("on", state.On).Debug("confirmation differs from last command")
	}

	d.pub.Publish(events.Event{
		Kind: events.LedConfirmed,
		Role: role,
		Time: time.Now(),
		Led:  &state,
	})
	return state, true
}

func (d *Dispatcher) State(role types.Role) (types.LedState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	led, ok := d.leds[role]
	if !ok {
		return types.LedState{}, false
	}
	return *led, true
}

func (d *Dispatcher) States() []types.LedState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]types.LedState, 0, len(d.leds))
	for _, role := range types.ButtonRoles {
		out = append(out, *d.leds[role])
	}
	return out
}
