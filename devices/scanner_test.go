package devices

import (
	"errors"
	"runtime"
	"testing"

	"bike-arcade-controller/config"
	"bike-arcade-controller/logging"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func newTestScanner(cfg config.ScannerConfig, ports []*enumerator.PortDetails, err error) *Scanner {
	s := NewScanner(cfg, logging.Discard())
	s.list = func() ([]*enumerator.PortDetails, error) { return ports, err }
	s.exists = func(string) bool { return false }
	return s
}

func TestScanFiltersCandidates(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", Product: "Arduino Uno"},
		{Name: "/dev/cu.usbmodem14101", IsUSB: true, VID: "FFFF"},
		{Name: "COM7", IsUSB: true, VID: "abcd", Product: "USB-SERIAL CH340"},
		{Name: "/dev/ttyAMA0", IsUSB: false},
		{Name: "/dev/ttyX", IsUSB: true, VID: "1a86"},
	}

	s := newTestScanner(config.Default().Scanner, ports, nil)
	candidates, err := s.Scan()
	require.NoError(t, err)

	got := map[string]string{}
	for _, c := range candidates {
		got[c.Name] = c.Reason
	}
	require.Equal(t, map[string]string{
		"/dev/ttyACM0":          "vid",
		"/dev/cu.usbmodem14101": "path",
		"COM7":                  "product",
		"/dev/ttyX":             "vid",
	}, got)
}

func TestScanIncludeAll(t *testing.T) {
	cfg := config.ScannerConfig{IncludeAll: true}
	ports := []*enumerator.PortDetails{{Name: "/dev/ttyS0"}, {Name: "/dev/ttyS1"}}

	candidates, err := newTestScanner(cfg, ports, nil).Scan()
	require.NoError(t, err)
	require.Len(t, candidates, 2)
}

func TestScanEnumerationErrorWithoutFallback(t *testing.T) {
	boom := errors.New("no udev")
	_, err := newTestScanner(config.Default().Scanner, nil, boom).Scan()
	require.ErrorIs(t, err, boom)
}

func TestScanFallsBackToCommonPorts(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("fallback names are OS specific")
	}
	s := newTestScanner(config.Default().Scanner, nil, nil)
	s.exists = func(name string) bool { return name == "/dev/ttyACM1" }

	candidates, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "/dev/ttyACM1", candidates[0].Name)
	require.Equal(t, "path", candidates[0].Reason)
}
