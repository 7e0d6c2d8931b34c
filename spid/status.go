package spid

import (
	"github.com/w1xm/spid_controller/rotator"
)

// AxisStatus is the display view of one axis.
type AxisStatus struct {
	Fitted    bool   `json:"fitted"`
	Position  int    `json:"position"`
	Target    int    `json:"target"`
	State     string `json:"state"`
	Direction string `json:"direction"`
	Parking   bool   `json:"parking"`
	Halted    bool   `json:"halted"`
}

// Status is a read-only snapshot of the controller for displays and host
// protocols.
type Status struct {
	Azimuth   AxisStatus `json:"azimuth"`
	Elevation AxisStatus `json:"elevation"`

	// PositionKnown is false when the saved position was missing or
	// invalid at startup and nothing has been saved since.
	PositionKnown bool `json:"position_known"`
	FlushPending  bool `json:"flush_pending"`
	// Parked is set when every parking axis reached its park position and
	// cleared by the next command.
	Parked bool `json:"parked"`
}

func (s Status) Clone() rotator.Status {
	return s
}

func (s Status) AzimuthPosition() float64 {
	return float64(s.Azimuth.Position)
}

func (s Status) ElevationPosition() float64 {
	return float64(s.Elevation.Position)
}

func (s Status) AzimuthTarget() float64 {
	return float64(s.Azimuth.Target)
}

func (s Status) ElevationTarget() float64 {
	return float64(s.Elevation.Target)
}

func (s Status) AzimuthMoving() bool {
	return s.Azimuth.State != StateIdle.String()
}

func (s Status) ElevationMoving() bool {
	return s.Elevation.Fitted && s.Elevation.State != StateIdle.String()
}

// Axis returns the status of one axis.
func (s Status) Axis(a rotator.Axis) AxisStatus {
	if a == rotator.Elevation {
		return s.Elevation
	}
	return s.Azimuth
}

// Parking reports whether any axis is still parking.
func (s Status) Parking() bool {
	return s.Azimuth.Parking || s.Elevation.Parking
}

func (s Status) Halted() bool {
	return s.Azimuth.Halted || s.Elevation.Halted
}

func (s Status) Homed() bool {
	return s.PositionKnown
}
