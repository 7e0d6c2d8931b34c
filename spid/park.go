package spid

import (
	"log"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
)

// ParkCoordinator drives the configured axes to their park positions.
type ParkCoordinator struct {
	positions [len(rotator.Axes)]*int
	active    [len(rotator.Axes)]bool
	// abandoned is set when an axis of the current park was cancelled or
	// halted before it arrived.
	abandoned bool
}

func NewParkCoordinator(cfg config.Controller) *ParkCoordinator {
	p := &ParkCoordinator{}
	p.positions[rotator.Azimuth] = cfg.Azimuth.Park
	if cfg.Elevation {
		p.positions[rotator.Elevation] = cfg.ElevationLimits.Park
	}
	return p
}

// Request sets the target of every configured axis to its park position.
// It returns the axes that were retargeted; none means parking is not
// configured.
func (p *ParkCoordinator) Request(t *PositionTracker) []rotator.Axis {
	var parked []rotator.Axis
	p.abandoned = false
	for _, a := range rotator.Axes {
		pos := p.positions[a]
		if pos == nil || t.Axis(a) == nil {
			continue
		}
		t.SetTarget(a, *pos)
		p.active[a] = true
		parked = append(parked, a)
	}
	return parked
}

// Cancel abandons parking on one axis, e.g. after a manual command.
func (p *ParkCoordinator) Cancel(a rotator.Axis) {
	if p.active[a] {
		p.abandoned = true
	}
	p.active[a] = false
}

// Parking reports whether an axis is still heading for its park position.
func (p *ParkCoordinator) Parking(a rotator.Axis) bool {
	return p.active[a]
}

// Check clears axes that reached their park position, or were halted on the
// way, and reports whether the park completed during this call with every
// axis at its park position.
func (p *ParkCoordinator) Check(t *PositionTracker, m *MotionController) bool {
	was := false
	for _, a := range rotator.Axes {
		if !p.active[a] {
			continue
		}
		was = true
		ax := t.Axis(a)
		if m.State(a) != StateIdle {
			continue
		}
		switch {
		case m.Halted(a):
			log.Printf("%v: park abandoned at %d", a, ax.Current)
			p.active[a] = false
			p.abandoned = true
		case ax.Current == *p.positions[a]:
			p.active[a] = false
		}
	}
	if !was {
		return false
	}
	for _, a := range rotator.Axes {
		if p.active[a] {
			return false
		}
	}
	if p.abandoned {
		return false
	}
	log.Printf("park complete")
	return true
}
