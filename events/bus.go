// Package events carries controller events to the game layer. The set of kinds is
// closed; subscribers pick kinds, not free-form names.
package events

import (
	"sync"
	"time"

	"bike-arcade-controller/types"

	"github.com/cskr/pubsub"
)

type Kind int

const (
	ButtonPress Kind = iota + 1
	ButtonRelease
	LedConfirmed
	CadenceSample
	DeviceReady
	DeviceDisconnected
)

// AllKinds lists every event kind.
var AllKinds = []Kind{ButtonPress, ButtonRelease, LedConfirmed, CadenceSample, DeviceReady, DeviceDisconnected}

func (k Kind) String() string {
	switch k {
	case ButtonPress:
		return "button-press"
	case ButtonRelease:
		return "button-release"
	case LedConfirmed:
		return "led-confirmed"
	case CadenceSample:
		return "cadence-sample"
	case DeviceReady:
		return "device-ready"
	case DeviceDisconnected:
		return "device-disconnected"
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Edge string

const (
	EdgePressed  Edge = "pressed"
	EdgeReleased Edge = "released"
)

// Event is one controller event. Fields beyond Kind, Role and Time depend on Kind.
type Event struct {
	Kind Kind       `json:"kind"`
	Role types.Role `json:"role"`
	Time time.Time  `json:"time"`

	// ButtonPress, ButtonRelease
	Color    string `json:"color,omitempty"`
	Position string `json:"position,omitempty"`
	Edge     Edge   `json:"edge,omitempty"`

	// LedConfirmed
	Led *types.LedState `json:"led,omitempty"`

	// CadenceSample
	Sample *types.CadenceSample `json:"sample,omitempty"`

	// DeviceReady, DeviceDisconnected
	Port   string `json:"port,omitempty"`
	Device string `json:"device,omitempty"`
}

const defaultCapacity = 128

// Bus publishes events on one pubsub topic per kind. Publishing never blocks; a
// subscriber whose buffer is full misses events.
type Bus struct {
	ps       *pubsub.PubSub
	mu       sync.Mutex
	shutdown bool
}

func NewBus() *Bus {
	return &Bus{ps: pubsub.New(defaultCapacity)}
}

func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return
	}
	b.ps.TryPub(ev, ev.Kind.String())
}

// Subscription delivers events of the subscribed kinds on C until Close.
type Subscription struct {
	C <-chan Event

	bus  *Bus
	src  chan interface{}
	done chan struct{}
	once sync.Once
}

// Subscribe returns a subscription to the given kinds, or to every kind when none are given.
func (b *Bus) Subscribe(kinds ...Kind) *Subscription {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	topics := make([]string, len(kinds))
	for i, k := range kinds {
		topics[i] = k.String()
	}

	out := make(chan Event, defaultCapacity)
	sub := &Subscription{C: out, bus: b, done: make(chan struct{})}

	b.mu.Lock()
	if b.shutdown {
		b.mu.Unlock()
		close(out)
		close(sub.done)
		return sub
	}
	sub.src = b.ps.Sub(topics...)
	b.mu.Unlock()

	go func() {
		defer close(out)
		for msg := range sub.src {
			ev, ok := msg.(Event)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-sub.done:
				// keep draining src until pubsub closes it
			}
		}
	}()
	return sub
}

// Close stops delivery; C is closed once pending events are drained.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.src == nil {
			return
		}
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		if !s.bus.shutdown {
			s.bus.ps.Unsub(s.src)
		}
	})
}

// Shutdown closes every subscription.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return
	}
	b.shutdown = true
	b.ps.Shutdown()
}
