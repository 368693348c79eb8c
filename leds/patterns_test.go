package leds

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/logging"
	"bike-arcade-controller/types"

	"github.com/stretchr/testify/require"
)

// script records LED commands and pauses in call order.
type script struct {
	mu    sync.Mutex
	steps []string
}

func (s *script) add(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *script) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func (s *script) SetRole(role types.Role, on bool) bool {
	if on {
		s.add(fmt.Sprintf("on%d", role))
	} else {
		s.add(fmt.Sprintf("off%d", role))
	}
	return true
}

func (s *script) SetAll(on bool) int {
	if on {
		s.add("on*")
	} else {
		s.add("off*")
	}
	return types.ButtonCount
}

func (s *script) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.add(fmt.Sprintf("wait%d", d.Milliseconds()))
	return nil
}

func newTestEngine(seed uint64) (*Engine, *script) {
	s := &script{}
	e := NewEngine(s, config.Default().Patterns, logging.Discard(), nil,
		WithSleep(s.sleep),
		WithRand(rand.New(rand.NewPCG(seed, seed+1))),
	)
	return e, s
}

func TestChaseOrder(t *testing.T) {
	e, s := newTestEngine(1)
	require.NoError(t, e.Chase(context.Background(), 1, 100*time.Millisecond))

	require.Equal(t, []string{
		"on1", "wait100", "off1",
		"on2", "wait100", "off2",
		"on3", "wait100", "off3",
		"on4", "wait100", "off4",
	}, s.all())
}

func TestFlash(t *testing.T) {
	e, s := newTestEngine(1)
	require.NoError(t, e.Flash(context.Background(), types.RoleButton2, 2, 50*time.Millisecond))
	require.Equal(t, []string{"on2", "wait50", "off2", "wait50", "on2", "wait50", "off2"}, s.all())

	e, s = newTestEngine(1)
	require.NoError(t, e.FlashAll(context.Background(), 1, 80*time.Millisecond))
	require.Equal(t, []string{"on*", "wait80", "off*"}, s.all())
}

func TestRandomSequenceIsAlwaysAPermutation(t *testing.T) {
	for seed := uint64(0); seed < 200; seed++ {
		e, _ := newTestEngine(seed)
		played, err := e.RandomSequence(context.Background(), 4, 10*time.Millisecond, 5*time.Millisecond, 3)
		require.NoError(t, err)
		require.Len(t, played, 3)

		for _, seq := range played {
			sorted := append([]types.Role(nil), seq...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			require.Equal(t, types.ButtonRoles, sorted)
		}
	}
}

func TestRandomSequenceSkipsTrailingOffPause(t *testing.T) {
	e, s := newTestEngine(7)
	played, err := e.RandomSequence(context.Background(), 2, 10*time.Millisecond, 5*time.Millisecond, 1)
	require.NoError(t, err)
	require.Len(t, played[0], 2)

	a, b := played[0][0], played[0][1]
	require.NotEqual(t, a, b)
	require.Equal(t, []string{
		fmt.Sprintf("on%d", a), "wait10", fmt.Sprintf("off%d", a), "wait5",
		fmt.Sprintf("on%d", b), "wait10", fmt.Sprintf("off%d", b),
	}, s.all())
}

func TestSimonSaysReturnsSequence(t *testing.T) {
	for seed := uint64(0); seed < 50; seed++ {
		e, s := newTestEngine(seed)
		seq, err := e.SimonSays(context.Background(), 6, 40*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, seq, 6)
		for _, role := range seq {
			require.True(t, role.IsButton())
		}

		var lit []string
		for _, step := range s.all() {
			if step[:2] == "on" {
				lit = append(lit, step)
			}
		}
		require.Len(t, lit, 6)
		for i, role := range seq {
			require.Equal(t, fmt.Sprintf("on%d", role), lit[i])
		}
	}
}

func TestSimonSaysNegativeLengthPlaysNothing(t *testing.T) {
	e, s := newTestEngine(1)
	seq, err := e.SimonSays(context.Background(), -1, 40*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, seq)
	require.Empty(t, s.all())
}

func TestCascadeSwitchesOffInReverse(t *testing.T) {
	e, s := newTestEngine(3)
	waves, err := e.Cascade(context.Background(), 1, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, waves, 1)

	order := waves[0]
	want := []string{}
	for _, role := range order {
		want = append(want, fmt.Sprintf("on%d", role), "wait20")
	}
	want = append(want, "wait300")
	for i := len(order) - 1; i >= 0; i-- {
		want = append(want, fmt.Sprintf("off%d", order[i]))
		if i > 0 {
			want = append(want, "wait20")
		}
	}
	require.Equal(t, want, s.all())
	require.True(t, order[0] == types.RoleButton1 || order[0] == types.RoleButton4)
}

func TestRhythmicBeats(t *testing.T) {
	sizes := map[int]int{}
	for seed := uint64(0); seed < 100; seed++ {
		e, _ := newTestEngine(seed)
		beats, err := e.Rhythmic(context.Background(), 10, 500*time.Millisecond)
		require.NoError(t, err)
		require.Len(t, beats, 10)
		for _, roles := range beats {
			sizes[len(roles)]++
			seen := map[types.Role]bool{}
			for _, role := range roles {
				require.True(t, role.IsButton())
				require.False(t, seen[role], "role repeated within a beat")
				seen[role] = true
			}
		}
	}
	for size := range sizes {
		require.Contains(t, []int{1, 2, 4}, size)
	}
	require.Greater(t, sizes[1], sizes[2])
	require.Greater(t, sizes[2], sizes[4])
}

func TestRhythmicBeatTiming(t *testing.T) {
	e, s := newTestEngine(11)
	_, err := e.Rhythmic(context.Background(), 1, 500*time.Millisecond)
	require.NoError(t, err)

	steps := s.all()
	require.Contains(t, steps, "wait300")
	require.Contains(t, steps, "wait200")
}

func TestNewPatternPreemptsOverlappingOne(t *testing.T) {
	s := &script{}
	e := NewEngine(s, config.Default().Patterns, logging.Discard(), nil)

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- e.Flash(context.Background(), types.RoleButton1, 1, time.Hour)
	}()

	require.Eventually(t, func() bool { return len(e.Running()) == 1 }, time.Second, 5*time.Millisecond)

	// real sleeps: keep the chase short
	require.NoError(t, e.Chase(context.Background(), 1, time.Millisecond))

	select {
	case err := <-firstErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("flash was not preempted")
	}

	steps := s.all()
	require.Equal(t, "on1", steps[0])
	// the chase starts only after the flash stopped
	require.Equal(t, []string{"on1", "off1", "on2", "off2", "on3", "off3", "on4", "off4"}, steps[1:])
	require.Empty(t, e.Running())
}

func TestPreemptStopsPatternsOnRole(t *testing.T) {
	s := &script{}
	e := NewEngine(s, config.Default().Patterns, logging.Discard(), nil)

	errs := make(chan error, 2)
	go func() { errs <- e.Flash(context.Background(), types.RoleButton1, 1, time.Hour) }()
	go func() { errs <- e.Flash(context.Background(), types.RoleButton2, 1, time.Hour) }()
	require.Eventually(t, func() bool { return len(e.Running()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Preempt(context.Background(), types.RoleButton2))
	require.ErrorIs(t, <-errs, context.Canceled)
	require.Equal(t, []string{"flash"}, e.Running())

	require.NoError(t, e.Preempt(context.Background(), types.ButtonRoles...))
	require.ErrorIs(t, <-errs, context.Canceled)
	require.Empty(t, e.Running())
}

func TestCallerCancellationStopsPattern(t *testing.T) {
	e, s := newTestEngine(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Chase(ctx, 3, 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, s.all())
}
