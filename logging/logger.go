package logging

import (
	"os"
	"sync"

	"bike-arcade-controller/config"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
)

// Hub fans log entries out to live clients (the SSE log stream).
type Hub struct {
	mu      sync.RWMutex
	clients map[chan types.LogMessage]bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan types.LogMessage]bool)}
}

func (h *Hub) AddClient(client chan types.LogMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

func (h *Hub) RemoveClient(client chan types.LogMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client)
	}
}

func (h *Hub) Broadcast(msg types.LogMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client <- msg:
		default:
			// client is not keeping up, skip it
		}
	}
}

func (h *Hub) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *Hub) Fire(entry *logrus.Entry) error {
	component, _ := entry.Data["component"].(string)
	if component == "" {
		component = "system"
	}
	h.Broadcast(types.LogMessage{
		Time:    entry.Time.Format("15:04:05"),
		Message: entry.Message,
		Type:    component,
		Level:   entry.Level.String(),
	})
	return nil
}

// New builds the process logger and attaches hub to it.
func New(cfg config.LogConfig, hub *Hub) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	}

	if hub != nil {
		logger.AddHook(hub)
	}
	return logger, nil
}

// Component returns an entry tagged with the component name.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// Discard returns an entry that writes nowhere; used by tests.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(discard{})
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
