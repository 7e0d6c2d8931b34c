package simulator

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/w1xm/spid_controller/rotator"
)

// Loosely modelled on a SPID RAS: one pulse per degree, roughly 2.5 deg/s.

const (
	// Default motor speed in degrees/second
	defaultSpeed = 2.5
	// Discrete simulation step size
	stepSize = 25 * time.Millisecond
)

// ErrRelay is returned by SetRelay while relay faults are injected.
var ErrRelay = errors.New("simulated relay fault")

// AxisModel describes the mechanics of one axis.
type AxisModel struct {
	// Position is the mechanical position in degrees.
	Position float64
	// Speed in degrees/second while a relay is energized.
	Speed float64
	// Stops enables the Lower and Upper mechanical endstops.
	Stops        bool
	Lower, Upper float64
}

// DefaultModel returns an azimuth axis without endstops and an elevation
// axis with endstops just outside 0..90.
func DefaultModel() [2]AxisModel {
	return [2]AxisModel{
		{Speed: defaultSpeed},
		{Speed: defaultSpeed, Stops: true, Lower: -0.5, Upper: 90.5},
	}
}

type axis struct {
	AxisModel
	jammed bool
}

// Simulator is a rotator whose motors move while their relays are
// energized and report each degree travelled as a pulse edge.
type Simulator struct {
	mu      sync.Mutex
	sink    rotator.PulseSink
	axes    [len(rotator.Axes)]axis
	relays  [len(rotator.AllRelays)]bool
	buttons [len(rotator.AllButtons)]bool
	last    time.Time
	started bool

	// bounce, if non-zero, adds a spurious edge this long after every pulse.
	bounce      time.Duration
	relayFault  bool
	overlaps    int
	relayWrites int
}

func New(model [2]AxisModel, sink rotator.PulseSink) *Simulator {
	s := &Simulator{sink: sink}
	for i := range s.axes {
		s.axes[i].AxisModel = model[i]
	}
	return s
}

// SetSink replaces the pulse receiver.
func (s *Simulator) SetSink(sink rotator.PulseSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// SetBounce makes every pulse followed by a spurious edge after d.
func (s *Simulator) SetBounce(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bounce = d
}

// Jam stops an axis from moving even while its relay is energized.
func (s *Simulator) Jam(a rotator.Axis, jammed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axes[a].jammed = jammed
}

// FailRelays makes every SetRelay call fail while fail is true.
func (s *Simulator) FailRelays(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayFault = fail
}

// SetButton presses or releases a front panel button.
func (s *Simulator) SetButton(b rotator.Button, pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buttons[b] = pressed
}

func (s *Simulator) Pressed(b rotator.Button) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buttons[b], nil
}

func (s *Simulator) SetRelay(r rotator.Relay, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relayFault {
		return ErrRelay
	}
	s.relayWrites++
	s.relays[r] = on
	for _, a := range rotator.Axes {
		up, _ := rotator.RelayFor(a, rotator.Increasing)
		down, _ := rotator.RelayFor(a, rotator.Decreasing)
		if s.relays[up] && s.relays[down] {
			s.overlaps++
			log.Printf("sim: both %v relays energized", a)
		}
	}
	return nil
}

// Relay reports whether a relay is energized.
func (s *Simulator) Relay(r rotator.Relay) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relays[r]
}

// Overlaps counts the times both relays of one axis were on together.
func (s *Simulator) Overlaps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlaps
}

// RelayWrites counts successful relay writes.
func (s *Simulator) RelayWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayWrites
}

// Position returns the mechanical position of an axis.
func (s *Simulator) Position(a rotator.Axis) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axes[a].Position
}

// SetPosition moves an axis by hand, e.g. to model a rotator turned while
// the controller was off. No pulses are emitted.
func (s *Simulator) SetPosition(a rotator.Axis, pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.axes[a].Position = pos
}

func (s *Simulator) direction(a rotator.Axis) rotator.Direction {
	up, _ := rotator.RelayFor(a, rotator.Increasing)
	down, _ := rotator.RelayFor(a, rotator.Decreasing)
	switch {
	case s.relays[up] && !s.relays[down]:
		return rotator.Increasing
	case s.relays[down] && !s.relays[up]:
		return rotator.Decreasing
	}
	return rotator.Idle
}

type edge struct {
	axis rotator.Axis
	at   time.Time
}

// Step advances the mechanics to now and delivers the pulse edges produced
// on the way, each stamped with the moment its degree boundary was crossed.
func (s *Simulator) Step(now time.Time) {
	s.mu.Lock()
	var edges []edge
	if s.started && now.After(s.last) {
		for _, a := range rotator.Axes {
			edges = append(edges, s.move(a, s.last, now)...)
		}
	}
	s.started = true
	if now.After(s.last) {
		s.last = now
	}
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		return
	}
	for _, e := range edges {
		sink(e.axis, e.at)
	}
}

func (s *Simulator) move(a rotator.Axis, from, to time.Time) []edge {
	ax := &s.axes[a]
	dir := s.direction(a)
	if dir == rotator.Idle || ax.jammed || ax.Speed <= 0 {
		return nil
	}
	p0 := ax.Position
	p1 := p0 + float64(dir.Sign())*ax.Speed*to.Sub(from).Seconds()
	if ax.Stops {
		p1 = math.Max(ax.Lower, math.Min(ax.Upper, p1))
	}
	ax.Position = p1

	var edges []edge
	add := func(k float64) {
		at := from.Add(time.Duration(math.Abs(k-p0) / ax.Speed * float64(time.Second)))
		edges = append(edges, edge{a, at})
		if s.bounce > 0 {
			edges = append(edges, edge{a, at.Add(s.bounce)})
		}
	}
	if p1 > p0 {
		for k := math.Floor(p0) + 1; k <= math.Floor(p1); k++ {
			add(k)
		}
	} else {
		for k := math.Floor(p0); k > math.Floor(p1); k-- {
			add(k)
		}
	}
	return edges
}

// Run steps the simulation against clock until ctx is done.
func (s *Simulator) Run(ctx context.Context, clock rotator.Clock) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		s.Step(clock.Now())
	}
}
