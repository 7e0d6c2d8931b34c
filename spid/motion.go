package spid

import (
	"fmt"
	"log"
	"time"

	"github.com/w1xm/spid_controller/rotator"
)

// State is the motion state of one axis.
type State int

const (
	StateIdle State = iota
	StateMoving
	StateCalibrating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMoving:
		return "moving"
	case StateCalibrating:
		return "calibrating"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Transition is the state change of one axis during one step.
type Transition struct {
	Axis     rotator.Axis
	From, To State
}

// Stopped reports whether the axis came to rest.
func (t Transition) Stopped() bool {
	return t.From != StateIdle && t.To == StateIdle
}

// MotionController decides which relay of each axis is energized.
// It is the only writer of the relay outputs.
type MotionController struct {
	relays rotator.Relays
	stall  *StallDetector
	// cal is nil when elevation control is not fitted.
	cal *CalibrationController

	state  [len(rotator.Axes)]State
	halted [len(rotator.Axes)]bool
	want   [len(rotator.Axes)]rotator.Direction

	// relay holds the last state written successfully; stale marks
	// relays whose real state is unknown because a write failed or
	// nothing has been written yet.
	relay  [len(rotator.AllRelays)]bool
	stale  [len(rotator.AllRelays)]bool
	failed [len(rotator.AllRelays)]bool
}

func NewMotionController(relays rotator.Relays, stall *StallDetector, cal *CalibrationController) *MotionController {
	m := &MotionController{relays: relays, stall: stall, cal: cal}
	for i := range m.stale {
		m.stale[i] = true
	}
	return m
}

// State returns the motion state of an axis.
func (m *MotionController) State(a rotator.Axis) State {
	return m.state[a]
}

// Halted reports whether an axis was stopped by a stall and is waiting for a
// new command.
func (m *MotionController) Halted(a rotator.Axis) bool {
	return m.halted[a]
}

// Release lets a halted axis move again. Called for every new command.
func (m *MotionController) Release(a rotator.Axis) {
	m.halted[a] = false
}

// Energized reports the last successfully written state of a relay.
func (m *MotionController) Energized(r rotator.Relay) bool {
	return m.relay[r] && !m.stale[r]
}

// driving reports whether the relay for the current direction of ax is on.
func (m *MotionController) driving(ax *Axis) bool {
	r, ok := rotator.RelayFor(ax.ID, ax.Direction)
	return ok && m.Energized(r)
}

func directionTo(ax *Axis) rotator.Direction {
	switch {
	case ax.Target > ax.Current:
		return rotator.Increasing
	case ax.Target < ax.Current:
		return rotator.Decreasing
	}
	return rotator.Idle
}

// Step advances the state machine of one axis.
func (m *MotionController) Step(ax *Axis, now time.Time) Transition {
	a := ax.ID
	t := Transition{Axis: a, From: m.state[a]}
	switch m.state[a] {
	case StateCalibrating:
		if m.cal.Done(now) {
			m.cal.Finish(ax)
			m.stop(ax)
			log.Printf("%v: endstop backoff complete at %d", a, ax.Current)
		}
	case StateMoving:
		switch {
		case ax.Current == ax.Target:
			m.stop(ax)
		case m.stall.Stalled(ax, m.driving(ax), now):
			m.stalled(ax, now)
		default:
			if dir := directionTo(ax); dir != ax.Direction {
				m.start(ax, dir, now)
			}
		}
	case StateIdle:
		if !m.halted[a] && ax.Current != ax.Target {
			m.start(ax, directionTo(ax), now)
		}
	}
	m.apply(ax, now)
	t.To = m.state[a]
	return t
}

func (m *MotionController) start(ax *Axis, dir rotator.Direction, now time.Time) {
	ax.Direction = dir
	ax.LastDirection = dir
	m.stall.Arm(ax, now)
	m.want[ax.ID] = dir
	m.state[ax.ID] = StateMoving
}

func (m *MotionController) stop(ax *Axis) {
	ax.Direction = rotator.Idle
	m.want[ax.ID] = rotator.Idle
	m.state[ax.ID] = StateIdle
}

func (m *MotionController) stalled(ax *Axis, now time.Time) {
	dir := ax.Direction
	if ax.ID == rotator.Elevation && m.cal != nil {
		if extreme, ok := Endstop(ax, dir); ok {
			log.Printf("%v: endstop reached heading %v, position %d -> %d", ax.ID, dir, ax.Current, extreme)
			ax.Current = extreme
			back := m.cal.Begin(ax, dir)
			ax.Direction = back
			m.want[ax.ID] = back
			m.state[ax.ID] = StateCalibrating
			return
		}
	}
	log.Printf("%v: no pulse for %v heading %v at %d (target %d); stopping", ax.ID, now.Sub(ax.LastPulse), dir, ax.Current, ax.Target)
	m.stop(ax)
	m.halted[ax.ID] = true
}

// Shutdown de-energizes every relay of every axis.
func (m *MotionController) Shutdown(axes []*Axis) {
	for _, ax := range axes {
		m.stop(ax)
		m.apply(ax, time.Time{})
	}
}

// apply brings the relays of an axis in line with the wanted direction,
// switching the unwanted relay off before the wanted one goes on. The stall
// timer, and the backoff clock while calibrating, start when the wanted
// relay is confirmed on.
func (m *MotionController) apply(ax *Axis, now time.Time) {
	a := ax.ID
	want := m.want[a]
	for _, d := range []rotator.Direction{rotator.Increasing, rotator.Decreasing} {
		if d == want {
			continue
		}
		r, _ := rotator.RelayFor(a, d)
		m.set(r, false)
	}
	if want == rotator.Idle {
		return
	}
	other, _ := rotator.RelayFor(a, want.Reverse())
	if m.relay[other] || m.stale[other] {
		return
	}
	r, _ := rotator.RelayFor(a, want)
	if m.Energized(r) {
		return
	}
	if !m.set(r, true) {
		return
	}
	m.stall.Arm(ax, now)
	if m.state[a] == StateCalibrating {
		m.cal.Start(now)
	}
}

// set writes a relay and reports whether its state is now known to be on.
func (m *MotionController) set(r rotator.Relay, on bool) bool {
	if m.relay[r] == on && !m.stale[r] {
		return on
	}
	if err := m.relays.SetRelay(r, on); err != nil {
		if !m.failed[r] {
			log.Printf("setting relay %v to %v: %v", r, on, err)
		}
		m.stale[r] = true
		m.failed[r] = true
		return false
	}
	if m.failed[r] {
		log.Printf("relay %v recovered", r)
	}
	m.relay[r] = on
	m.stale[r] = false
	m.failed[r] = false
	return on
}
