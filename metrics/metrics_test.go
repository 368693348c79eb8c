package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LineReceived("ready")
	m.Unrecognized()
	m.LedCommand("button1", true)
	m.WriteFailed("/dev/ttyACM0")
	m.DeviceOpened()
	m.DeviceClosed()
	m.RoleConflict()
	m.SampleDropped()
	m.PatternRun("chase", "completed")
	require.Nil(t, m.Registry())
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.LineReceived("button_pressed")
	m.LineReceived("button_pressed")
	m.Unrecognized()
	m.DeviceOpened()
	m.DeviceOpened()
	m.DeviceClosed()

	require.Equal(t, 2.0, testutil.ToFloat64(m.linesReceived.WithLabelValues("button_pressed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.unrecognized))
	require.Equal(t, 1.0, testutil.ToFloat64(m.openDevices))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "arcade_lines_received_total"))
}
