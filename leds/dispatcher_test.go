package leds

import (
	"errors"
	"sync"
	"testing"

	"bike-arcade-controller/events"
	"bike-arcade-controller/logging"
	"bike-arcade-controller/protocol"
	"bike-arcade-controller/registry"
	"bike-arcade-controller/types"

	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	mu      sync.Mutex
	id      string
	sent    []string
	sendErr error
}

func (d *fakeDevice) ID() string         { return d.id }
func (d *fakeDevice) PortName() string   { return "/dev/" + d.id }
func (d *fakeDevice) Alive() bool        { return true }
func (d *fakeDevice) SetRole(types.Role) {}

func (d *fakeDevice) commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

func (d *fakeDevice) Send(command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, command)
	return nil
}

type fakeLookup map[types.Role]*fakeDevice

func (l fakeLookup) Lookup(role types.Role) (registry.Device, bool) {
	d, ok := l[role]
	if !ok {
		return nil, false
	}
	return d, true
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestSetRoleIsOptimistic(t *testing.T) {
	dev := &fakeDevice{id: "p1"}
	rec := &recorder{}
	d := NewDispatcher(fakeLookup{types.RoleButton1: dev}, rec, logging.Discard(), nil)

	require.True(t, d.SetRole(types.RoleButton1, true))

	state, ok := d.State(types.RoleButton1)
	require.True(t, ok)
	require.True(t, state.On)
	require.False(t, state.Confirmed)
	require.Equal(t, []string{"LED_ON"}, dev.commands())

	state, ok = d.Confirm(types.RoleButton1, protocol.LedOn)
	require.True(t, ok)
	require.True(t, state.Confirmed)
	require.Len(t, rec.events, 1)
	require.Equal(t, events.LedConfirmed, rec.events[0].Kind)
	require.True(t, rec.events[0].Led.Confirmed)
}

func TestConfirmToggleInverts(t *testing.T) {
	d := NewDispatcher(fakeLookup{}, &recorder{}, logging.Discard(), nil)

	state, _ := d.Confirm(types.RoleButton3, protocol.LedToggle)
	require.True(t, state.Confirmed)
	state, _ = d.Confirm(types.RoleButton3, protocol.LedToggle)
	require.False(t, state.Confirmed)
	state, _ = d.Confirm(types.RoleButton3, protocol.LedOff)
	require.False(t, state.Confirmed)

	_, ok := d.Confirm(types.RoleCadence, protocol.LedOn)
	require.False(t, ok)
}

func TestSetRoleWithoutDevice(t *testing.T) {
	d := NewDispatcher(fakeLookup{}, &recorder{}, logging.Discard(), nil)

	require.False(t, d.SetRole(types.RoleButton2, true))
	state, _ := d.State(types.RoleButton2)
	require.False(t, state.On)

	require.False(t, d.SetRole(types.RoleCadence, true))
}

func TestSetRoleSendFailure(t *testing.T) {
	dev := &fakeDevice{id: "p1", sendErr: errors.New("connection closed")}
	d := NewDispatcher(fakeLookup{types.RoleButton4: dev}, &recorder{}, logging.Discard(), nil)

	require.False(t, d.SetRole(types.RoleButton4, true))
	state, ok := d.State(types.RoleButton4)
	require.True(t, ok)
	require.False(t, state.On)
}

func TestSetAll(t *testing.T) {
	one := &fakeDevice{id: "p1"}
	three := &fakeDevice{id: "p3"}
	d := NewDispatcher(fakeLookup{types.RoleButton1: one, types.RoleButton3: three}, &recorder{}, logging.Discard(), nil)

	require.Equal(t, 2, d.SetAll(true))
	require.Equal(t, []string{"LED_ON"}, one.commands())
	require.Equal(t, []string{"LED_ON"}, three.commands())

	states := d.States()
	require.Len(t, states, 4)
	require.True(t, states[0].On)
	require.False(t, states[1].On)
	require.True(t, states[2].On)
}
