package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"bike-arcade-controller/config"
	"bike-arcade-controller/devices"
	"bike-arcade-controller/events"
	"bike-arcade-controller/input"
	"bike-arcade-controller/leds"
	"bike-arcade-controller/logging"
	"bike-arcade-controller/metrics"
	"bike-arcade-controller/protocol"
	"bike-arcade-controller/registry"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
)

var ErrNoDevice = errors.New("no device holds the role")

// PortScanner finds candidate serial ports.
type PortScanner interface {
	Scan() ([]types.PortCandidate, error)
}

// Controller ties the serial devices to the game layer. It is created by the
// application's main and handed to whoever needs it; there is no package level instance.
type Controller struct {
	cfg     *config.Config
	log     *logrus.Entry
	metrics *metrics.Metrics

	bus      *events.Bus
	scanner  PortScanner
	manager  *devices.Manager
	registry *registry.Registry
	tracker  *input.Tracker
	leds     *leds.Dispatcher
	patterns *leds.Engine

	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

type Option func(*options)

type options struct {
	opener     devices.Opener
	scanner    PortScanner
	engineOpts []leds.Option
}

// WithOpener replaces the serial driver picked from the config.
func WithOpener(o devices.Opener) Option {
	return func(opts *options) { opts.opener = o }
}

func WithScanner(s PortScanner) Option {
	return func(opts *options) { opts.scanner = s }
}

func WithEngineOptions(engineOpts ...leds.Option) Option {
	return func(opts *options) { opts.engineOpts = append(opts.engineOpts, engineOpts...) }
}

func New(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics, opts ...Option) (*Controller, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.opener == nil {
		opener, err := devices.NewOpener(cfg.Serial.Driver)
		if err != nil {
			return nil, err
		}
		o.opener = opener
	}
	if o.scanner == nil {
		o.scanner = devices.NewScanner(cfg.Scanner, logging.Component(logger, "scanner"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:     cfg,
		log:     logging.Component(logger, "controller"),
		metrics: m,
		bus:     events.NewBus(),
		scanner: o.scanner,
		ctx:     ctx,
		cancel:  cancel,
	}

	c.registry = registry.New(logging.Component(logger, "registry"), m)
	c.tracker = input.NewTracker(cfg.Buttons, c.bus, logging.Component(logger, "input"), m)
	c.leds = leds.NewDispatcher(c.registry, c.bus, logging.Component(logger, "leds"), m)
	c.patterns = leds.NewEngine(c.leds, cfg.Patterns, logging.Component(logger, "patterns"), m, o.engineOpts...)
	c.manager = devices.NewManager(cfg.Serial, o.opener, c, logging.Component(logger, "devices"), m)
	return c, nil
}

// Start scans for devices and opens every candidate port. Ports that fail to open are
// logged and skipped; there is no retry beyond an explicit Rescan.
func (c *Controller) Start(ctx context.Context) (int, error) {
	return c.Rescan(ctx)
}

// Rescan opens candidate ports that are not open yet and returns how many it opened.
func (c *Controller) Rescan(ctx context.Context) (int, error) {
	candidates, err := c.scanner.Scan()
	if err != nil {
		return 0, fmt.Errorf("scan: %w", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for _, cand := range candidates {
		if c.manager.IsOpen(cand.Name) {
			continue
		}
		wg.Add(1)
		go func(cand types.PortCandidate) {
			defer wg.Done()
			if _, err := c.manager.Open(ctx, cand); err != nil {
				return
			}
			mu.Lock()
			opened++
			mu.Unlock()
		}(cand)
	}
	wg.Wait()

	c.log.WithField("candidates", len(candidates)).WithField("opened", opened).Info("scan finished")
	return opened, nil
}

// Attach adds an already open stream as a device connection.
func (c *Controller) Attach(name string, rw io.ReadWriteCloser) (*devices.Connection, error) {
	return c.manager.Attach(name, rw)
}

// Stop cancels running patterns, closes every port and ends all subscriptions.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	c.cancel()
	c.manager.CloseAll()
	c.wg.Wait()
	c.bus.Shutdown()
}

// Subscribe returns a subscription to the given event kinds, or all kinds if none given.
func (c *Controller) Subscribe(kinds ...events.Kind) *events.Subscription {
	return c.bus.Subscribe(kinds...)
}

// HandleLine implements devices.Handler.
func (c *Controller) HandleLine(conn *devices.Connection, line string) {
	msg := protocol.Decode(line)
	c.metrics.LineReceived(msg.Kind.String())
	entry := c.log.WithField("port", conn.PortName())

	switch msg.Kind {
	case protocol.KindUnrecognized:
		c.metrics.Unrecognized()
		if msg.Raw != "" {
			entry.WithField("line", msg.Raw).Warn("unrecognized line")
		}

	case protocol.KindIdentifyEcho:
		entry.Debug("identify echoed")

	case protocol.KindReady:
		c.claim(conn, msg.Role, msg.Color)

	case protocol.KindButtonPressed, protocol.KindButtonReleased:
		c.checkSender(conn, msg.Role, entry)
		edge := c.tracker.ButtonReleased
		if msg.Kind == protocol.KindButtonPressed {
			edge = c.tracker.ButtonPressed
		}
		if err := edge(msg.Role); err != nil {
			entry.WithError(err).Warn("button edge dropped")
		}

	case protocol.KindLedConfirmed:
		c.leds.Confirm(msg.Role, msg.Led)

	case protocol.KindPong:
		entry.WithField("role", msg.Role.String()).Debug("pong")

	case protocol.KindCadenceSample:
		if _, held := c.registry.RoleOf(conn); !held {
			if _, taken := c.registry.Lookup(types.RoleCadence); !taken {
				c.claim(conn, types.RoleCadence, "")
			}
		}
		if _, err := c.tracker.CadenceSample(msg.Count, msg.RPM, msg.Timestamp); err != nil {
			entry.WithError(err).Debug("cadence sample dropped")
		}
	}
}

// checkSender logs input from a device that does not hold the role it reports.
func (c *Controller) checkSender(conn *devices.Connection, role types.Role, entry *logrus.Entry) {
	held, ok := c.registry.RoleOf(conn)
	if !ok || held != role {
		entry.WithField("role", role.String()).WithField("held", held.String()).Debug("input from a device not holding the role")
	}
}

func (c *Controller) claim(conn *devices.Connection, role types.Role, color string) {
	res := c.registry.Claim(conn, role)
	if !res.Claimed {
		return
	}
	if role.IsButton() {
		c.tracker.SetColor(role, color)
	}

	c.bus.Publish(events.Event{
		Kind:   events.DeviceReady,
		Role:   role,
		Color:  color,
		Port:   conn.PortName(),
		Device: conn.ID(),
	})

	if role.IsButton() && c.cfg.Patterns.ConfirmFlash > 0 {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.stopped {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.patterns.Flash(c.ctx, role, 1, c.cfg.Patterns.ConfirmFlash); err != nil {
				c.log.WithField("role", role.String()).WithError(err).Debug("confirm flash cut short")
			}
		}()
	}
}

// HandleClosed implements devices.Handler. The role is released before anyone hears
// about the disconnect, so a new device can claim it straight away.
func (c *Controller) HandleClosed(conn *devices.Connection, err error) {
	role := c.registry.Release(conn)

	c.bus.Publish(events.Event{
		Kind:   events.DeviceDisconnected,
		Role:   role,
		Port:   conn.PortName(),
		Device: conn.ID(),
	})
}

// Status returns a snapshot of devices, buttons, LEDs and cadence.
func (c *Controller) Status() types.ControllerStatus {
	conns := c.manager.Connections()
	status := types.ControllerStatus{
		Devices: make([]types.DeviceStatus, 0, len(conns)),
		Buttons: c.tracker.Buttons(),
		Leds:    c.leds.States(),
		Cadence: c.tracker.Cadence(),
	}
	for _, conn := range conns {
		status.Devices = append(status.Devices, conn.Status())
	}
	return status
}

// Metrics returns the collectors the controller records into; may be nil.
func (c *Controller) Metrics() *metrics.Metrics {
	return c.metrics
}
