package input

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/events"
	"bike-arcade-controller/metrics"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
)

var ErrInvalidSample = errors.New("invalid cadence sample")

// Publisher is where the tracker sends its events.
type Publisher interface {
	Publish(ev events.Event)
}

// Tracker keeps the pressed state of each button and the bike cadence. Button edges are
// published unfiltered; rate limiting is up to the consumer.
type Tracker struct {
	mu      sync.Mutex
	buttons map[types.Role]*types.ButtonInfo
	cadence types.CadenceSample

	pub     Publisher
	log     *logrus.Entry
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewTracker(buttons []config.ButtonConfig, pub Publisher, log *logrus.Entry, m *metrics.Metrics) *Tracker {
	t := &Tracker{
		buttons: make(map[types.Role]*types.ButtonInfo, types.ButtonCount),
		pub:     pub,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
	for _, role := range types.ButtonRoles {
		t.buttons[role] = &types.ButtonInfo{Role: role, Color: role.String()}
	}
	for _, b := range buttons {
		role := types.Role(b.ID)
		if info, ok := t.buttons[role]; ok {
			info.Color = b.Color
			info.Position = b.Position
		}
	}
	return t
}

// SetColor records the color a device announced when it identified.
func (t *Tracker) SetColor(role types.Role, color string) {
	if color == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.buttons[role]; ok {
		info.Color = color
	}
}

func (t *Tracker) ButtonPressed(role types.Role) error {
	return t.edge(role, true)
}

func (t *Tracker) ButtonReleased(role types.Role) error {
	return t.edge(role, false)
}

func (t *Tracker) edge(role types.Role, pressed bool) error {
	t.mu.Lock()
	info, ok := t.buttons[role]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("no button role %d", role)
	}
	info.Pressed = pressed
	ev := events.Event{
		Kind:     events.ButtonRelease,
		Role:     role,
		Time:     t.now(),
		Color:    info.Color,
		Position: info.Position,
		Edge:     events.EdgeReleased,
	}
	t.mu.Unlock()

	if pressed {
		ev.Kind = events.ButtonPress
		ev.Edge = events.EdgePressed
	}
	t.pub.Publish(ev)
	return nil
}

// Button returns the state of a button role.
func (t *Tracker) Button(role types.Role) (types.ButtonInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.buttons[role]
	if !ok {
		return types.ButtonInfo{}, false
	}
	return *info, true
}

func (t *Tracker) Buttons() []types.ButtonInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.ButtonInfo, 0, len(t.buttons))
	for _, role := range types.ButtonRoles {
		out = append(out, *t.buttons[role])
	}
	return out
}

// CadenceSample applies a sample. Negative fields drop the sample. The revolution count
// only moves forward; the rpm is taken from every valid sample, even one whose count is
// stale. A cadence-sample event carrying the resulting state is published for every
// valid sample.
func (t *Tracker) CadenceSample(count, rpm, timestamp int64) (types.CadenceSample, error) {
	if count < 0 || rpm < 0 {
		t.metrics.SampleDropped()
		t.log.WithField("count", count).WithField("rpm", rpm).Warn("dropping cadence sample with negative fields")
		return t.Cadence(), fmt.Errorf("%w: count=%d rpm=%d", ErrInvalidSample, count, rpm)
	}

	t.mu.Lock()
	if count > t.cadence.Count {
		t.cadence.Count = count
		t.cadence.Timestamp = timestamp
	} else {
		t.log.WithField("count", count).WithField("current", t.cadence.Count).Debug("stale revolution count")
	}
	t.cadence.RPM = rpm
	t.cadence.Received = t.now()
	sample := t.cadence
	t.mu.Unlock()

	t.pub.Publish(events.Event{
		Kind:   events.CadenceSample,
		Role:   types.RoleCadence,
		Time:   sample.Received,
		Sample: &sample,
	})
	return sample, nil
}

func (t *Tracker) Cadence() types.CadenceSample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cadence
}

// ResetCadence zeroes the local cadence state.
func (t *Tracker) ResetCadence() {
	t.mu.Lock()
	t.cadence = types.CadenceSample{}
	t.mu.Unlock()
	t.log.Info("cadence counter reset")
}
