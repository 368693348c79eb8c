package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/controller"
	"bike-arcade-controller/events"
	"bike-arcade-controller/logging"
	"bike-arcade-controller/metrics"
	"bike-arcade-controller/types"

	"github.com/atotto/clipboard"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Controller is the part of the device controller the HTTP surface drives.
type Controller interface {
	Status() types.ControllerStatus
	Rescan(ctx context.Context) (int, error)
	SetLed(role types.Role, on bool) bool
	SetAllLeds(on bool) int
	RunPattern(ctx context.Context, req controller.PatternRequest) (any, error)
	SimonSaysPattern(ctx context.Context, length int, speed time.Duration) ([]types.Role, error)
	ResetCadenceCounter() error
	SimulateCadence(count, rpm int64) (types.CadenceSample, error)
	Subscribe(kinds ...events.Kind) *events.Subscription
}

type Server struct {
	addr     string
	ctrl     Controller
	hub      *logging.Hub
	metrics  *metrics.Metrics
	log      *logrus.Entry
	upgrader websocket.Upgrader
	copy     func(string) error
}

func NewServer(cfg config.WebConfig, ctrl Controller, hub *logging.Hub, m *metrics.Metrics, log *logrus.Entry) *Server {
	return &Server{
		addr:    cfg.Addr,
		ctrl:    ctrl,
		hub:     hub,
		metrics: m,
		log:     log,
		upgrader: websocket.Upgrader{
			// the dashboard is served from the same host; game clients may not be
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		copy: clipboard.WriteAll,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/reconnect", s.reconnectHandler)
	mux.HandleFunc("/led", s.ledHandler)
	mux.HandleFunc("/pattern", s.patternHandler)
	mux.HandleFunc("/pattern/simon", s.simonHandler)
	mux.HandleFunc("/cadence/reset", s.cadenceResetHandler)
	mux.HandleFunc("/cadence/simulate", s.cadenceSimulateHandler)
	mux.HandleFunc("/logs/stream", s.logsStreamHandler)
	mux.HandleFunc("/events/ws", s.eventsHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// streams watch the request context, so they end with the server
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("web server shutdown")
		}
	}()

	s.log.WithField("addr", s.addr).Info("web server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
