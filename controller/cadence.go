package controller

import (
	"time"

	"bike-arcade-controller/config"
	"bike-arcade-controller/protocol"
	"bike-arcade-controller/types"
)

// ResetCadenceCounter zeroes the local cadence state and tells the bike sensor to do the
// same. The local reset happens even when no sensor is connected.
func (c *Controller) ResetCadenceCounter() error {
	c.tracker.ResetCadence()
	return c.sendTo(types.RoleCadence, config.CMD_RESET_COUNTER)
}

// SetGameMode switches the bike sensor between game and idle reporting.
func (c *Controller) SetGameMode(on bool) error {
	return c.sendTo(types.RoleCadence, protocol.GameModeCommand(on))
}

// TestCadenceSensor asks the bike sensor to run its self test.
func (c *Controller) TestCadenceSensor() error {
	return c.sendTo(types.RoleCadence, config.CMD_TEST)
}

// SimulateCadence feeds a synthetic sample through the same path as a real one, for
// playing without the bike attached.
func (c *Controller) SimulateCadence(count, rpm int64) (types.CadenceSample, error) {
	c.log.WithField("count", count).WithField("rpm", rpm).Debug("simulated cadence sample")
	return c.tracker.CadenceSample(count, rpm, time.Now().UnixMilli())
}

func (c *Controller) Cadence() types.CadenceSample {
	return c.tracker.Cadence()
}
