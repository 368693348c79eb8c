package leds

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/metrics"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
)

// Leds is what patterns drive.
type Leds interface {
	SetRole(role types.Role, on bool) bool
	SetAll(on bool) int
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine plays timed LED patterns. A pattern claims the roles it touches; starting a new
// pattern (or calling Preempt) cancels every running pattern sharing a role with it and
// waits for it to stop before the first new command goes out. A cancelled pattern leaves
// its LEDs as they were; the preempting caller sets the state it wants.
type Engine struct {
	leds  Leds
	sleep SleepFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	cascadeHold time.Duration
	rhythmDuty  float64

	mu     sync.Mutex
	active map[uint64]*patternRun
	seq    uint64

	log     *logrus.Entry
	metrics *metrics.Metrics
}

type patternRun struct {
	name   string
	roles  map[types.Role]bool
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Engine)

func WithSleep(sleep SleepFunc) Option {
	return func(e *Engine) { e.sleep = sleep }
}

func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

func NewEngine(leds Leds, cfg config.PatternConfig, log *logrus.Entry, m *metrics.Metrics, opts ...Option) *Engine {
	e := &Engine{
		leds:        leds,
		sleep:       sleepContext,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		cascadeHold: cfg.CascadeHold,
		rhythmDuty:  cfg.RhythmDuty,
		active:      make(map[uint64]*patternRun),
		log:         log,
		metrics:     m,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rhythmDuty <= 0 || e.rhythmDuty > 1 {
		e.rhythmDuty = 0.6
	}
	return e
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Preempt cancels running patterns that touch any of roles and waits for them to stop.
func (e *Engine) Preempt(ctx context.Context, roles ...types.Role) error {
	for {
		e.mu.Lock()
		overlapping := e.overlapping(roles)
		e.mu.Unlock()
		if len(overlapping) == 0 {
			return nil
		}
		if err := e.stopAll(ctx, overlapping); err != nil {
			return err
		}
	}
}

// Running returns the names of the patterns currently playing.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.active))
	for _, r := range e.active {
		names = append(names, r.name)
	}
	return names
}

func (e *Engine) overlapping(roles []types.Role) []*patternRun {
	var out []*patternRun
	for _, r := range e.active {
		for _, role := range roles {
			if r.roles[role] {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (e *Engine) stopAll(ctx context.Context, runs []*patternRun) error {
	for _, r := range runs {
		r.cancel()
	}
	for _, r := range runs {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// acquire registers a run for roles once no overlapping run is left.
func (e *Engine) acquire(ctx context.Context, name string, roles []types.Role) (context.Context, func(), error) {
	for {
		e.mu.Lock()
		overlapping := e.overlapping(roles)
		if len(overlapping) == 0 {
			runCtx, cancel := context.WithCancel(ctx)
			e.seq++
			id := e.seq
			run := &patternRun{
				name:   name,
				roles:  make(map[types.Role]bool, len(roles)),
				cancel: cancel,
				done:   make(chan struct{}),
			}
			for _, role := range roles {
				run.roles[role] = true
			}
			e.active[id] = run
			e.mu.Unlock()

			release := func() {
				e.mu.Lock()
				delete(e.active, id)
				e.mu.Unlock()
				cancel()
				close(run.done)
			}
			return runCtx, release, nil
		}
		e.mu.Unlock()

		for _, r := range overlapping {
			e.log.WithField("pattern", name).WithField("preempted", r.name).Debug("preempting pattern")
		}
		if err := e.stopAll(ctx, overlapping); err != nil {
			return nil, nil, err
		}
	}
}

func (e *Engine) play(ctx context.Context, name string, roles []types.Role, body func(ctx context.Context) error) error {
	runCtx, release, err := e.acquire(ctx, name, roles)
	if err != nil {
		return err
	}
	defer release()

	err = body(runCtx)
	switch {
	case err == nil:
		e.metrics.PatternRun(name, "completed")
	case errors.Is(err, context.Canceled) && ctx.Err() == nil:
		e.metrics.PatternRun(name, "preempted")
		e.log.WithField("pattern", name).Debug("pattern preempted")
	default:
		e.metrics.PatternRun(name, "cancelled")
	}
	return err
}

// set issues one command unless the run was cancelled. A command to a missing or dead
// device fails quietly and the pattern goes on.
func (e *Engine) set(ctx context.Context, role types.Role, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.leds.SetRole(role, on)
	return nil
}

func (e *Engine) setAll(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.leds.SetAll(on)
	return nil
}

func (e *Engine) intN(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.IntN(n)
}

func (e *Engine) float() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

// permutation returns the button roles in uniformly random order (Fisher-Yates).
func (e *Engine) permutation() []types.Role {
	roles := append([]types.Role(nil), types.ButtonRoles...)
	for i := len(roles) - 1; i > 0; i-- {
		j := e.intN(i + 1)
		roles[i], roles[j] = roles[j], roles[i]
	}
	return roles
}

func (e *Engine) randomRole() types.Role {
	return types.ButtonRoles[e.intN(types.ButtonCount)]
}

// Flash blinks one role times times, each on and off phase lasting duration.
func (e *Engine) Flash(ctx context.Context, role types.Role, times int, duration time.Duration) error {
	return e.play(ctx, "flash", []types.Role{role}, func(ctx context.Context) error {
		for i := 0; i < times; i++ {
			if err := e.set(ctx, role, true); err != nil {
				return err
			}
			if err := e.sleep(ctx, duration); err != nil {
				return err
			}
			if err := e.set(ctx, role, false); err != nil {
				return err
			}
			if i < times-1 {
				if err := e.sleep(ctx, duration); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// FlashAll blinks every button together.
func (e *Engine) FlashAll(ctx context.Context, times int, duration time.Duration) error {
	return e.play(ctx, "flash_all", types.ButtonRoles, func(ctx context.Context) error {
		for i := 0; i < times; i++ {
			if err := e.setAll(ctx, true); err != nil {
				return err
			}
			if err := e.sleep(ctx, duration); err != nil {
				return err
			}
			if err := e.setAll(ctx, false); err != nil {
				return err
			}
			if i < times-1 {
				if err := e.sleep(ctx, duration); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Chase lights roles 1 to 4 in turn, speed per light, for rounds rounds.
func (e *Engine) Chase(ctx context.Context, rounds int, speed time.Duration) error {
	return e.play(ctx, "chase", types.ButtonRoles, func(ctx context.Context) error {
		for r := 0; r < rounds; r++ {
			for _, role := range types.ButtonRoles {
				if err := e.set(ctx, role, true); err != nil {
					return err
				}
				if err := e.sleep(ctx, speed); err != nil {
					return err
				}
				if err := e.set(ctx, role, false); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// RandomSequence plays total sequences, each the first count roles of a fresh random
// permutation. Every light stays on for on and is followed by off, except the last light
// of a sequence. It returns the sequences played.
func (e *Engine) RandomSequence(ctx context.Context, count int, on, off time.Duration, total int) ([][]types.Role, error) {
	count = max(1, min(count, types.ButtonCount))
	var played [][]types.Role

	err := e.play(ctx, "random_sequence", types.ButtonRoles, func(ctx context.Context) error {
		for s := 0; s < total; s++ {
			seq := e.permutation()[:count]
			played = append(played, seq)
			for i, role := range seq {
				if err := e.set(ctx, role, true); err != nil {
					return err
				}
				if err := e.sleep(ctx, on); err != nil {
					return err
				}
				if err := e.set(ctx, role, false); err != nil {
					return err
				}
				if i < len(seq)-1 {
					if err := e.sleep(ctx, off); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	return played, err
}

// Cascade plays waves of lights in a random direction, holds, then switches them off in
// reverse order. It returns the lighting order of every wave.
func (e *Engine) Cascade(ctx context.Context, waves int, waveSpeed time.Duration) ([][]types.Role, error) {
	var played [][]types.Role

	err := e.play(ctx, "cascade", types.ButtonRoles, func(ctx context.Context) error {
		for w := 0; w < waves; w++ {
			order := append([]types.Role(nil), types.ButtonRoles...)
			if e.intN(2) == 1 {
				reverse(order)
			}
			played = append(played, order)

			for _, role := range order {
				if err := e.set(ctx, role, true); err != nil {
					return err
				}
				if err := e.sleep(ctx, waveSpeed); err != nil {
					return err
				}
			}
			if err := e.sleep(ctx, e.cascadeHold); err != nil {
				return err
			}
			for i := len(order) - 1; i >= 0; i-- {
				if err := e.set(ctx, order[i], false); err != nil {
					return err
				}
				if i > 0 {
					if err := e.sleep(ctx, waveSpeed); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	return played, err
}

// SimonSays generates length random roles (repeats allowed), plays them and returns
// them so the caller can check the player's answer. The sequence is returned even when
// playback is cut short.
func (e *Engine) SimonSays(ctx context.Context, length int, speed time.Duration) ([]types.Role, error) {
	seq := make([]types.Role, max(0, length))
	for i := range seq {
		seq[i] = e.randomRole()
	}

	err := e.play(ctx, "simon_says", types.ButtonRoles, func(ctx context.Context) error {
		for i, role := range seq {
			if err := e.set(ctx, role, true); err != nil {
				return err
			}
			if err := e.sleep(ctx, speed); err != nil {
				return err
			}
			if err := e.set(ctx, role, false); err != nil {
				return err
			}
			if i < len(seq)-1 {
				if err := e.sleep(ctx, speed/2); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return seq, err
}

// Rhythmic plays beats of tempo length. Each beat lights one random role (70%), two
// distinct random roles (20%) or all four (10%) for a share of the beat, then rests for
// the remainder. It returns the roles lit on every beat.
func (e *Engine) Rhythmic(ctx context.Context, beats int, tempo time.Duration) ([][]types.Role, error) {
	lit := time.Duration(float64(tempo) * e.rhythmDuty)
	rest := tempo - lit
	var played [][]types.Role

	err := e.play(ctx, "rhythmic", types.ButtonRoles, func(ctx context.Context) error {
		for b := 0; b < beats; b++ {
			roles := e.beatRoles()
			played = append(played, roles)

			all := len(roles) == types.ButtonCount
			if all {
				if err := e.setAll(ctx, true); err != nil {
					return err
				}
			} else {
				for _, role := range roles {
					if err := e.set(ctx, role, true); err != nil {
						return err
					}
				}
			}
			if err := e.sleep(ctx, lit); err != nil {
				return err
			}
			if all {
				if err := e.setAll(ctx, false); err != nil {
					return err
				}
			} else {
				for _, role := range roles {
					if err := e.set(ctx, role, false); err != nil {
						return err
					}
				}
			}
			if err := e.sleep(ctx, rest); err != nil {
				return err
			}
		}
		return nil
	})
	return played, err
}

func (e *Engine) beatRoles() []types.Role {
	p := e.float()
	switch {
	case p < 0.7:
		return []types.Role{e.randomRole()}
	case p < 0.9:
		return e.permutation()[:2]
	default:
		return append([]types.Role(nil), types.ButtonRoles...)
	}
}

func reverse(roles []types.Role) {
	for i, j := 0, len(roles)-1; i < j; i, j = i+1, j-1 {
		roles[i], roles[j] = roles[j], roles[i]
	}
}
