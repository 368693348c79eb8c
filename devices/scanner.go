package devices

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"bike-arcade-controller/config"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial/enumerator"
)

// PortLister returns the ports the OS currently reports.
type PortLister func() ([]*enumerator.PortDetails, error)

// Scanner enumerates serial ports and keeps the ones that look like our microcontrollers.
// False positives are fine, the identification handshake sorts them out later.
// A board that matches no heuristic is silently missed.
type Scanner struct {
	cfg  config.ScannerConfig
	list PortLister
	log  *logrus.Entry

	// exists reports whether a fallback port path is present on disk.
	exists func(name string) bool
}

func NewScanner(cfg config.ScannerConfig, log *logrus.Entry) *Scanner {
	return &Scanner{
		cfg:    cfg,
		list:   enumerator.GetDetailedPortsList,
		log:    log,
		exists: pathExists,
	}
}

// Scan returns the candidate ports.
func (s *Scanner) Scan() ([]types.PortCandidate, error) {
	ports, err := s.list()
	if err != nil {
		s.log.WithError(err).Warn("port enumeration failed, falling back to common port names")
		ports = nil
	}

	if len(ports) == 0 {
		ports = s.commonPorts()
	}

	var candidates []types.PortCandidate
	for _, p := range ports {
		reason, ok := s.match(p)
		if !ok {
			s.log.WithField("port", p.Name).WithField("vid", p.VID).Debug("port skipped")
			continue
		}
		s.log.WithField("port", p.Name).WithField("reason", reason).Info("candidate port")
		candidates = append(candidates, types.PortCandidate{
			Name:    p.Name,
			IsUSB:   p.IsUSB,
			VID:     p.VID,
			PID:     p.PID,
			Product: p.Product,
			Serial:  p.SerialNumber,
			Reason:  reason,
		})
	}

	if len(candidates) == 0 && err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	return candidates, nil
}

func (s *Scanner) match(p *enumerator.PortDetails) (string, bool) {
	if s.cfg.IncludeAll {
		return "include_all", true
	}

	if p.IsUSB && p.VID != "" {
		for _, vid := range s.cfg.VIDs {
			if strings.EqualFold(vid, p.VID) {
				return "vid", true
			}
		}
	}

	product := strings.ToLower(p.Product)
	if product != "" {
		for _, marker := range s.cfg.ProductMarkers {
			if marker != "" && strings.Contains(product, strings.ToLower(marker)) {
				return "product", true
			}
		}
	}

	name := strings.ToLower(p.Name)
	for _, pattern := range s.cfg.PathPatterns {
		if pattern != "" && strings.Contains(name, strings.ToLower(pattern)) {
			return "path", true
		}
	}

	return "", false
}

// commonPorts returns the usual USB serial names for the current OS that exist on disk.
func (s *Scanner) commonPorts() []*enumerator.PortDetails {
	var names []string
	switch runtime.GOOS {
	case "windows":
		for i := 1; i <= 20; i++ {
			names = append(names, fmt.Sprintf("COM%d", i))
		}
	case "linux":
		for i := 0; i < 4; i++ {
			names = append(names, fmt.Sprintf("/dev/ttyACM%d", i), fmt.Sprintf("/dev/ttyUSB%d", i))
		}
	case "darwin":
		names = []string{"/dev/cu.usbmodem", "/dev/cu.usbserial", "/dev/tty.usbmodem", "/dev/tty.usbserial"}
	}

	var ports []*enumerator.PortDetails
	for _, name := range names {
		if runtime.GOOS != "windows" && !s.exists(name) {
			continue
		}
		ports = append(ports, &enumerator.PortDetails{Name: name})
	}
	return ports
}

func pathExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}
