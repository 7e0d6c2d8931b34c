package spid

import (
	"time"

	"github.com/w1xm/spid_controller/rotator"
)

// StallDetector flags an energized axis that has produced no pulse for
// longer than the motor timeout.
type StallDetector struct {
	timeout time.Duration
}

func NewStallDetector(timeout time.Duration) *StallDetector {
	return &StallDetector{timeout: timeout}
}

// Arm restarts the pulse timer, e.g. when a relay is energized.
func (s *StallDetector) Arm(ax *Axis, now time.Time) {
	ax.LastPulse = now
}

// Stalled reports whether ax is driven with its relay energized and its
// pulse timer has expired. A motor whose relay never closed is not stalled.
func (s *StallDetector) Stalled(ax *Axis, energized bool, now time.Time) bool {
	if ax.Direction == rotator.Idle || !energized {
		return false
	}
	return now.Sub(ax.LastPulse) > s.timeout
}

// CalibrationController backs the elevation motor off an endstop for a fixed
// relay-on time.
type CalibrationController struct {
	backoff time.Duration
	started time.Time
	active  bool
	// running is set once the reverse relay is confirmed on.
	running bool
}

func NewCalibrationController(backoff time.Duration) *CalibrationController {
	return &CalibrationController{backoff: backoff}
}

// Begin marks a backoff pending for an axis that stalled heading dir and
// returns the direction to drive during the backoff. The backoff clock does
// not run until Start.
func (c *CalibrationController) Begin(ax *Axis, dir rotator.Direction) rotator.Direction {
	c.active = true
	c.running = false
	ax.CalibrationPending = true
	return dir.Reverse()
}

// Start begins timing the backoff when the reverse relay closes.
// It is a no-op when no backoff is pending or the clock already runs.
func (c *CalibrationController) Start(now time.Time) {
	if !c.active || c.running {
		return
	}
	c.started = now
	c.running = true
}

// Done reports whether the reverse relay has been on for the full backoff.
func (c *CalibrationController) Done(now time.Time) bool {
	return c.running && now.Sub(c.started) >= c.backoff
}

// Finish clears the pending calibration.
func (c *CalibrationController) Finish(ax *Axis) {
	c.active = false
	c.running = false
	ax.CalibrationPending = false
}

// Endstop returns the extreme ax is heading for when driven in dir, if its
// target is that extreme.
func Endstop(ax *Axis, dir rotator.Direction) (int, bool) {
	switch {
	case dir == rotator.Decreasing && ax.Target == ax.Min:
		return ax.Min, true
	case dir == rotator.Increasing && ax.Target == ax.Max:
		return ax.Max, true
	}
	return 0, false
}
