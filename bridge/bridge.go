package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/events"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
)

// Bridge turns button presses into key presses for games that only read the keyboard.
// Presses of one role closer together than the minimum interval are dropped here; the
// controller itself still reports every edge.
type Bridge struct {
	presser     Presser
	keys        map[types.Role]int
	minInterval time.Duration
	log         *logrus.Entry
	now         func() time.Time

	mu   sync.Mutex
	last map[types.Role]time.Time
}

func New(cfg config.BridgeConfig, buttons []config.ButtonConfig, presser Presser, log *logrus.Entry) (*Bridge, error) {
	keys := make(map[types.Role]int, len(buttons))
	for _, b := range buttons {
		if b.Key == "" {
			continue
		}
		code, ok := KeyCode(b.Key)
		if !ok {
			return nil, fmt.Errorf("button %d: unknown key %q", b.ID, b.Key)
		}
		keys[types.Role(b.ID)] = code
	}

	return &Bridge{
		presser:     presser,
		keys:        keys,
		minInterval: cfg.MinInterval,
		log:         log,
		now:         time.Now,
		last:        make(map[types.Role]time.Time),
	}, nil
}

// Handle presses the key mapped to a button-press event. It reports whether a key was sent.
func (b *Bridge) Handle(ev events.Event) bool {
	if ev.Kind != events.ButtonPress {
		return false
	}
	key, ok := b.keys[ev.Role]
	if !ok {
		return false
	}

	now := b.now()
	b.mu.Lock()
	if last, seen := b.last[ev.Role]; seen && now.Sub(last) < b.minInterval {
		b.mu.Unlock()
		b.log.WithField("role", ev.Role.String()).Trace("press debounced")
		return false
	}
	b.last[ev.Role] = now
	b.mu.Unlock()

	if err := b.presser.Press(key); err != nil {
		b.log.WithField("role", ev.Role.String()).WithError(err).Error("key press failed")
		return false
	}
	return true
}

// Run consumes events until ctx is done or the subscription closes.
func (b *Bridge) Run(ctx context.Context, sub *events.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			b.Handle(ev)
		}
	}
}
