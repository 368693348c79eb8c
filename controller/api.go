package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/types"
)

var ErrUnknownPattern = errors.New("unknown pattern")

// SetLed switches one button LED, cancelling any pattern using that button first.
// It returns false when no device holds the role.
func (c *Controller) SetLed(role types.Role, on bool) bool {
	if err := c.patterns.Preempt(c.ctx, role); err != nil {
		return false
	}
	return c.leds.SetRole(role, on)
}

// SetAllLeds switches every button LED and returns how many devices got the command.
func (c *Controller) SetAllLeds(on bool) int {
	if err := c.patterns.Preempt(c.ctx, types.ButtonRoles...); err != nil {
		return 0
	}
	return c.leds.SetAll(on)
}

func (c *Controller) FlashLed(ctx context.Context, role types.Role, times int, duration time.Duration) error {
	if !role.IsButton() {
		return fmt.Errorf("flash: %s is not a button", role)
	}
	return c.patterns.Flash(ctx, role, times, duration)
}

func (c *Controller) FlashAll(ctx context.Context, times int, duration time.Duration) error {
	return c.patterns.FlashAll(ctx, times, duration)
}

func (c *Controller) ChaseLeds(ctx context.Context, rounds int, speed time.Duration) error {
	return c.patterns.Chase(ctx, rounds, speed)
}

func (c *Controller) RandomLedSequence(ctx context.Context, count int, on, off time.Duration, total int) ([][]types.Role, error) {
	return c.patterns.RandomSequence(ctx, count, on, off, total)
}

// SimonSaysPattern plays a random sequence and returns it for checking the player's input.
func (c *Controller) SimonSaysPattern(ctx context.Context, length int, speed time.Duration) ([]types.Role, error) {
	return c.patterns.SimonSays(ctx, length, speed)
}

func (c *Controller) RandomCascade(ctx context.Context, waves int, waveSpeed time.Duration) error {
	_, err := c.patterns.Cascade(ctx, waves, waveSpeed)
	return err
}

func (c *Controller) RhythmicRandomPattern(ctx context.Context, beats int, tempo time.Duration) error {
	_, err := c.patterns.Rhythmic(ctx, beats, tempo)
	return err
}

// Ping sends a liveness probe to the device holding role.
func (c *Controller) Ping(role types.Role) error {
	return c.sendTo(role, config.CMD_PING)
}

func (c *Controller) sendTo(role types.Role, command string) error {
	dev, ok := c.registry.Lookup(role)
	if !ok {
		return fmt.Errorf("%s: %w", role, ErrNoDevice)
	}
	return dev.Send(command)
}

// PatternRequest names a pattern and its parameters. Durations are in milliseconds.
type PatternRequest struct {
	Name     string `json:"name"`
	Role     int    `json:"role,omitempty"`
	Times    int    `json:"times,omitempty"`
	Rounds   int    `json:"rounds,omitempty"`
	Count    int    `json:"count,omitempty"`
	Total    int    `json:"total,omitempty"`
	Waves    int    `json:"waves,omitempty"`
	Length   int    `json:"length,omitempty"`
	Beats    int    `json:"beats,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Speed    int    `json:"speed,omitempty"`
	On       int    `json:"on,omitempty"`
	Off      int    `json:"off,omitempty"`
	Tempo    int    `json:"tempo,omitempty"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// RunPattern plays a pattern by name. Simon says returns its sequence, the random
// patterns return what they played.
func (c *Controller) RunPattern(ctx context.Context, req PatternRequest) (any, error) {
	switch req.Name {
	case "flash":
		if req.Role == 0 {
			return nil, c.FlashAll(ctx, req.Times, ms(req.Duration))
		}
		return nil, c.FlashLed(ctx, types.Role(req.Role), req.Times, ms(req.Duration))
	case "chase":
		return nil, c.ChaseLeds(ctx, req.Rounds, ms(req.Speed))
	case "random":
		return c.RandomLedSequence(ctx, req.Count, ms(req.On), ms(req.Off), req.Total)
	case "cascade":
		return c.patterns.Cascade(ctx, req.Waves, ms(req.Speed))
	case "simon":
		return c.SimonSaysPattern(ctx, req.Length, ms(req.Speed))
	case "rhythmic":
		return c.patterns.Rhythmic(ctx, req.Beats, ms(req.Tempo))
	}
	return nil, fmt.Errorf("%q: %w", req.Name, ErrUnknownPattern)
}
