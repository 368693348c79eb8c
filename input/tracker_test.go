package input

import (
	"sync"
	"testing"

	"bike-arcade-controller/config"
	"bike-arcade-controller/events"
	"bike-arcade-controller/logging"
	"bike-arcade-controller/types"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func newTestTracker() (*Tracker, *recorder) {
	rec := &recorder{}
	return NewTracker(config.Default().Buttons, rec, logging.Discard(), nil), rec
}

func TestButtonEdgesArePublishedUnfiltered(t *testing.T) {
	tr, rec := newTestTracker()

	require.NoError(t, tr.ButtonPressed(types.RoleButton1))
	require.NoError(t, tr.ButtonPressed(types.RoleButton1))
	require.NoError(t, tr.ButtonReleased(types.RoleButton1))

	evs := rec.all()
	require.Len(t, evs, 3)
	require.Equal(t, events.ButtonPress, evs[0].Kind)
	require.Equal(t, events.EdgePressed, evs[0].Edge)
	require.Equal(t, "GREEN", evs[0].Color)
	require.Equal(t, "left", evs[0].Position)
	require.Equal(t, events.ButtonPress, evs[1].Kind)
	require.Equal(t, events.ButtonRelease, evs[2].Kind)
	require.Equal(t, events.EdgeReleased, evs[2].Edge)

	info, ok := tr.Button(types.RoleButton1)
	require.True(t, ok)
	require.False(t, info.Pressed)
}

func TestButtonPressedStateAndColor(t *testing.T) {
	tr, rec := newTestTracker()
	tr.SetColor(types.RoleButton2, "PURPLE")
	tr.SetColor(types.RoleButton2, "")

	require.NoError(t, tr.ButtonPressed(types.RoleButton2))
	info, _ := tr.Button(types.RoleButton2)
	require.True(t, info.Pressed)
	require.Equal(t, "PURPLE", info.Color)
	require.Equal(t, "PURPLE", rec.all()[0].Color)

	require.Error(t, tr.ButtonPressed(types.RoleCadence))
	require.Len(t, tr.Buttons(), 4)
}

func TestCadenceCountOnlyMovesForward(t *testing.T) {
	tr, rec := newTestTracker()

	s, err := tr.CadenceSample(3, 60, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(3), s.Count)
	require.Equal(t, int64(60), s.RPM)

	// stale count is ignored but the rpm still follows the latest sample
	s, err = tr.CadenceSample(2, 50, 1100)
	require.NoError(t, err)
	require.Equal(t, int64(3), s.Count)
	require.Equal(t, int64(50), s.RPM)
	require.Equal(t, int64(1000), s.Timestamp)

	s, err = tr.CadenceSample(5, 80, 1001)
	require.NoError(t, err)
	require.Equal(t, int64(5), s.Count)
	require.Equal(t, int64(80), s.RPM)

	evs := rec.all()
	require.Len(t, evs, 3)
	require.Equal(t, events.CadenceSample, evs[2].Kind)
	require.Equal(t, int64(5), evs[2].Sample.Count)
	require.Equal(t, int64(80), evs[2].Sample.RPM)
}

func TestCadenceRejectsNegativeFields(t *testing.T) {
	tr, rec := newTestTracker()
	_, _ = tr.CadenceSample(4, 70, 1)

	_, err := tr.CadenceSample(-1, 70, 2)
	require.ErrorIs(t, err, ErrInvalidSample)
	_, err = tr.CadenceSample(9, -3, 3)
	require.ErrorIs(t, err, ErrInvalidSample)

	require.Equal(t, int64(4), tr.Cadence().Count)
	require.Equal(t, int64(70), tr.Cadence().RPM)
	require.Len(t, rec.all(), 1)
}

func TestResetCadence(t *testing.T) {
	tr, _ := newTestTracker()
	_, _ = tr.CadenceSample(12, 90, 5)

	tr.ResetCadence()
	require.Equal(t, types.CadenceSample{}, tr.Cadence())

	s, err := tr.CadenceSample(1, 30, 6)
	require.NoError(t, err)
	require.Equal(t, int64(1), s.Count)
}
