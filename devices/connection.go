package devices

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/metrics"
	"bike-arcade-controller/protocol"
	"bike-arcade-controller/types"
	"bike-arcade-controller/utils"

	"github.com/sirupsen/logrus"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrQueueFull        = errors.New("command queue full")
	ErrAlreadyOpen      = errors.New("port already open")
)

const (
	commandQueueSize = 64
	// longest line the firmware could send is well under this
	maxLineLength = 4096
)

// Handler receives what a connection reads. HandleClosed is called exactly once per
// connection, after its state is already Closed.
type Handler interface {
	HandleLine(c *Connection, line string)
	HandleClosed(c *Connection, err error)
}

// Connection is one open serial port. Commands go through a FIFO drained by a single
// writer goroutine, so one device sees its commands in submission order.
type Connection struct {
	id   string
	port string
	rw   io.ReadWriteCloser
	log  *logrus.Entry

	mu           sync.Mutex
	state        types.ConnState
	role         types.Role
	lastActivity time.Time

	queue     chan string
	done      chan struct{}
	closeOnce sync.Once
	onClosed  func(c *Connection, err error)
	metrics   *metrics.Metrics
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) PortName() string { return c.port }

func (c *Connection) State() types.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Role() types.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// SetRole records the role back-reference. A closed connection stays closed.
func (c *Connection) SetRole(role types.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
	if c.state == types.StateClosed {
		return
	}
	if role == types.RoleUnassigned {
		c.state = types.StateOpen
	} else {
		c.state = types.StateIdentified
	}
}

func (c *Connection) Alive() bool {
	return c.State() != types.StateClosed
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

func (c *Connection) setState(s types.ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) Status() types.DeviceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.DeviceStatus{
		ID:           c.id,
		Port:         c.port,
		State:        c.state.String(),
		Role:         c.role.String(),
		LastActivity: c.lastActivity,
	}
}

// Send queues a command; the terminator is added on write.
func (c *Connection) Send(command string) error {
	select {
	case <-c.done:
		return fmt.Errorf("%s: %w", c.port, ErrConnectionClosed)
	default:
	}

	select {
	case c.queue <- command:
		// both cases may have been ready; a command queued on a dead device is lost
		select {
		case <-c.done:
			return fmt.Errorf("%s: %w", c.port, ErrConnectionClosed)
		default:
		}
		return nil
	case <-c.done:
		return fmt.Errorf("%s: %w", c.port, ErrConnectionClosed)
	default:
		return fmt.Errorf("%s: %w", c.port, ErrQueueFull)
	}
}

// Close closes the port from the host side.
func (c *Connection) Close() {
	c.shutdown(nil)
}

// Done is closed once the connection is gone.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.setState(types.StateClosed)
		close(c.done)
		if err := c.rw.Close(); err != nil {
			c.log.WithError(err).Debug("close port")
		}
		if c.onClosed != nil {
			c.onClosed(c, cause)
		}
	})
}

func (c *Connection) readLoop(handler Handler) {
	scanner := bufio.NewScanner(c.rw)
	scanner.Buffer(make([]byte, 0, 512), maxLineLength)
	scanner.Split(lineSplitter(maxLineLength, func() {
		c.metrics.Unrecognized()
		c.log.WithField("limit", maxLineLength).Warn("dropped over-long line")
	}))
	for scanner.Scan() {
		line := scanner.Text()
		c.Touch()
		c.log.WithField("line", utils.FormatDataForLog(scanner.Bytes())).Trace("rx")
		handler.HandleLine(c, line)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case <-c.done:
		// closed by host, the read error is just the fallout
		return
	default:
	}
	c.log.WithError(err).Warn("read loop ended")
	c.shutdown(err)
}

// lineSplitter frames newline terminated lines like bufio.ScanLines, but a line that fills
// the whole buffer is dropped up to its terminator instead of failing the scan.
func lineSplitter(limit int, dropped func()) bufio.SplitFunc {
	discarding := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			if discarding {
				discarding = false
				return i + 1, nil, nil
			}
			return bufio.ScanLines(data, atEOF)
		}
		if len(data) >= limit {
			if !discarding {
				discarding = true
				dropped()
			}
			return len(data), nil, nil
		}
		if discarding && atEOF {
			return len(data), nil, nil
		}
		return bufio.ScanLines(data, atEOF)
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case command := <-c.queue:
			if _, err := c.rw.Write(protocol.Encode(command)); err != nil {
				c.metrics.WriteFailed(c.port)
				c.log.WithError(err).WithField("command", command).Error("serial write failed")
				c.shutdown(err)
				return
			}
			c.log.WithField("command", command).Trace("tx")
		}
	}
}

// Manager owns every open connection, keyed by port name.
type Manager struct {
	opener        Opener
	baudRate      int
	openTimeout   time.Duration
	identifyDelay time.Duration
	handler       Handler
	log           *logrus.Entry
	metrics       *metrics.Metrics

	mu    sync.Mutex
	conns map[string]*Connection
	seq   atomic.Uint64
}

func NewManager(cfg config.SerialConfig, opener Opener, handler Handler, log *logrus.Entry, m *metrics.Metrics) *Manager {
	return &Manager{
		opener:        opener,
		baudRate:      cfg.BaudRate,
		openTimeout:   cfg.OpenTimeout,
		identifyDelay: cfg.IdentifyDelay,
		handler:       handler,
		log:           log,
		metrics:       m,
		conns:         make(map[string]*Connection),
	}
}

// Open opens a candidate port, starts its read and write loops and schedules the IDENTIFY request.
func (m *Manager) Open(ctx context.Context, cand types.PortCandidate) (*Connection, error) {
	m.mu.Lock()
	if _, exists := m.conns[cand.Name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", cand.Name, ErrAlreadyOpen)
	}
	// reserve the name so two scans cannot open it twice
	m.conns[cand.Name] = nil
	m.mu.Unlock()

	c := m.newConnection(cand.Name, nil)
	c.setState(types.StateOpening)
	m.log.WithField("port", cand.Name).Info("opening port")

	rw, err := openWithTimeout(ctx, m.opener, cand.Name, m.baudRate, m.openTimeout)
	if err != nil {
		m.mu.Lock()
		delete(m.conns, cand.Name)
		m.mu.Unlock()
		c.setState(types.StateClosed)
		m.log.WithField("port", cand.Name).WithError(err).Error("open failed")
		return nil, fmt.Errorf("open %s: %w", cand.Name, err)
	}

	c.rw = rw
	m.start(c)
	return c, nil
}

// Attach wraps an already open stream, e.g. a pipe in tests or a simulated device.
func (m *Manager) Attach(name string, rw io.ReadWriteCloser) (*Connection, error) {
	m.mu.Lock()
	if _, exists := m.conns[name]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", name, ErrAlreadyOpen)
	}
	m.conns[name] = nil
	m.mu.Unlock()

	c := m.newConnection(name, rw)
	m.start(c)
	return c, nil
}

func (m *Manager) newConnection(name string, rw io.ReadWriteCloser) *Connection {
	id := fmt.Sprintf("dev-%d", m.seq.Add(1))
	return &Connection{
		id:       id,
		port:     name,
		rw:       rw,
		log:      m.log.WithField("port", name).WithField("device", id),
		state:    types.StateDiscovered,
		queue:    make(chan string, commandQueueSize),
		done:     make(chan struct{}),
		onClosed: m.connectionClosed,
		metrics:  m.metrics,
	}
}

func (m *Manager) start(c *Connection) {
	c.setState(types.StateOpen)
	c.Touch()

	m.mu.Lock()
	m.conns[c.port] = c
	m.mu.Unlock()
	m.metrics.DeviceOpened()
	c.log.Info("port open")

	go c.writeLoop()
	go c.readLoop(m.handler)
	go m.requestIdentify(c)
}

func (m *Manager) requestIdentify(c *Connection) {
	// most boards reset when the port opens and ignore input until the bootloader is done
	if m.identifyDelay > 0 {
		select {
		case <-time.After(m.identifyDelay):
		case <-c.done:
			return
		}
	}
	if err := c.Send(config.CMD_IDENTIFY); err != nil {
		c.log.WithError(err).Warn("identify request not sent")
	}
}

func (m *Manager) connectionClosed(c *Connection, err error) {
	m.mu.Lock()
	if cur, ok := m.conns[c.port]; ok && cur == c {
		delete(m.conns, c.port)
	}
	m.mu.Unlock()
	m.metrics.DeviceClosed()

	entry := c.log
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("connection closed")

	m.handler.HandleClosed(c, err)
}

// Get returns the open connection on a port.
func (m *Manager) Get(port string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[port]
	return c, ok && c != nil
}

func (m *Manager) IsOpen(port string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.conns[port]
	return ok
}

// Connections returns a snapshot of the open connections.
func (m *Manager) Connections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) CloseAll() {
	for _, c := range m.Connections() {
		c.Close()
	}
}
