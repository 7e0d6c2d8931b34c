package spid

import (
	"time"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
)

// Axis is the live state of one rotator axis.
type Axis struct {
	ID       rotator.Axis
	Min, Max int

	Current int
	Target  int

	// Direction is the energized direction; Idle when both relays are off.
	Direction rotator.Direction
	// LastDirection is the most recently driven direction. Pulses that
	// arrive while the motor coasts count this way.
	LastDirection rotator.Direction
	// LastPulse is the time of the last accepted pulse, or the time the
	// relay was energized if that is later.
	LastPulse time.Time

	CalibrationPending bool
}

func (ax *Axis) clamp(v int) int {
	if v < ax.Min {
		return ax.Min
	}
	if v > ax.Max {
		return ax.Max
	}
	return v
}

// PositionTracker owns the current and target position of every axis.
type PositionTracker struct {
	axes [len(rotator.Axes)]*Axis
}

func NewPositionTracker(cfg config.Controller) *PositionTracker {
	t := &PositionTracker{}
	t.axes[rotator.Azimuth] = &Axis{ID: rotator.Azimuth, Min: cfg.Azimuth.Min, Max: cfg.Azimuth.Max}
	if cfg.Elevation {
		t.axes[rotator.Elevation] = &Axis{ID: rotator.Elevation, Min: cfg.ElevationLimits.Min, Max: cfg.ElevationLimits.Max}
	}
	return t
}

// Axis returns the state of an axis, or nil if it is not fitted.
func (t *PositionTracker) Axis(a rotator.Axis) *Axis {
	if a < 0 || int(a) >= len(t.axes) {
		return nil
	}
	return t.axes[a]
}

// Axes returns the fitted axes in azimuth, elevation order.
func (t *PositionTracker) Axes() []*Axis {
	var out []*Axis
	for _, ax := range t.axes {
		if ax != nil {
			out = append(out, ax)
		}
	}
	return out
}

// Seed sets both current and target position, clamped to the axis range.
// It reports whether the value had to be clamped.
func (t *PositionTracker) Seed(a rotator.Axis, pos int) bool {
	ax := t.Axis(a)
	if ax == nil {
		return false
	}
	v := ax.clamp(pos)
	ax.Current, ax.Target = v, v
	return v != pos
}

// SetTarget clamps pos to the axis range and makes it the new target.
// It returns the accepted target and whether clamping happened.
func (t *PositionTracker) SetTarget(a rotator.Axis, pos int) (int, bool) {
	ax := t.Axis(a)
	if ax == nil {
		return 0, false
	}
	ax.Target = ax.clamp(pos)
	return ax.Target, ax.Target != pos
}

// Nudge moves the target by delta degrees, clamped to the axis range.
func (t *PositionTracker) Nudge(a rotator.Axis, delta int) int {
	ax := t.Axis(a)
	if ax == nil {
		return 0
	}
	ax.Target = ax.clamp(ax.Target + delta)
	return ax.Target
}

// ApplyPulse counts one accepted pulse and reports whether it was counted.
// Pulses during an endstop backoff, and pulses seen before the
// axis was ever driven, do not move the position.
func (t *PositionTracker) ApplyPulse(a rotator.Axis, at time.Time) bool {
	ax := t.Axis(a)
	if ax == nil {
		return false
	}
	if at.After(ax.LastPulse) {
		ax.LastPulse = at
	}
	if ax.CalibrationPending {
		return false
	}
	dir := ax.Direction
	if dir == rotator.Idle {
		dir = ax.LastDirection
	}
	if dir == rotator.Idle {
		return false
	}
	ax.Current = ax.clamp(ax.Current + dir.Sign())
	return true
}
