package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"bike-arcade-controller/config"

	jserial "github.com/jacobsa/go-serial/serial"
	"go.bug.st/serial"
)

var ErrOpenTimeout = errors.New("serial open timed out")

// Opener opens a serial port at the given baud rate.
type Opener interface {
	Open(name string, baud int) (io.ReadWriteCloser, error)
}

// BugstOpener opens ports with go.bug.st/serial.
type BugstOpener struct{}

func (BugstOpener) Open(name string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// JacobsaOpener opens ports with github.com/jacobsa/go-serial. Some CH340 clones behave
// better with its termios setup.
type JacobsaOpener struct{}

func (JacobsaOpener) Open(name string, baud int) (io.ReadWriteCloser, error) {
	options := jserial.OpenOptions{
		PortName:        name,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      jserial.PARITY_NONE,
		MinimumReadSize: 1,
	}
	return jserial.Open(options)
}

// NewOpener returns the opener for a config driver name.
func NewOpener(driver string) (Opener, error) {
	switch driver {
	case config.DriverBugst, "":
		return BugstOpener{}, nil
	case config.DriverJacobsa:
		return JacobsaOpener{}, nil
	}
	return nil, fmt.Errorf("unknown serial driver %q", driver)
}

type openResult struct {
	rw  io.ReadWriteCloser
	err error
}

// openWithTimeout fails fast instead of hanging on a wedged port. A port that opens
// after the deadline is closed again.
func openWithTimeout(ctx context.Context, opener Opener, name string, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan openResult)
	go func() {
		rw, err := opener.Open(name, baud)
		select {
		case resultChan <- openResult{rw: rw, err: err}:
		case <-ctx.Done():
			if rw != nil {
				rw.Close()
			}
		}
	}()

	select {
	case res := <-resultChan:
		return res.rw, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", name, ErrOpenTimeout)
		}
		return nil, ctx.Err()
	}
}
