// Package spid implements the motion control and position persistence
// engine of a two-axis relay-driven rotator such as the SPID RAS.
//
// All state is advanced by Tick on a single goroutine. Pulse edges and
// commands may arrive from any goroutine; they are queued and applied at the
// start of the next tick, before any axis is evaluated.
package spid

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
)

type StatusCallback func(status Status)

// Hardware bundles the collaborators the controller drives. Buttons may be
// nil when no front panel is fitted.
type Hardware struct {
	Clock   rotator.Clock
	Relays  rotator.Relays
	Buttons rotator.Buttons
	Storage rotator.Storage
}

type Controller struct {
	cfg   config.Controller
	clock rotator.Clock
	// buttons is nil when no front panel is fitted.
	buttons rotator.Buttons

	queue eventQueue

	debouncer *PulseDebouncer
	tracker   *PositionTracker
	motion    *MotionController
	persist   *PersistenceScheduler
	park      *ParkCoordinator
	buttonAcc *ButtonAccelerator

	known  bool
	parked bool

	statusCallback StatusCallback
	mu             sync.Mutex
	status         Status
}

// New builds a controller and seeds its position from storage.
func New(cfg config.Controller, hw Hardware, statusCallback StatusCallback) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.Clock == nil || hw.Relays == nil || hw.Storage == nil {
		return nil, errors.New("clock, relays and storage are required")
	}
	var cal *CalibrationController
	if cfg.Elevation {
		cal = NewCalibrationController(cfg.CalAdjustment())
	}
	c := &Controller{
		cfg:            cfg,
		clock:          hw.Clock,
		buttons:        hw.Buttons,
		debouncer:      NewPulseDebouncer(cfg.Debounce()),
		tracker:        NewPositionTracker(cfg),
		motion:         NewMotionController(hw.Relays, NewStallDetector(cfg.MotorTimeout()), cal),
		persist:        NewPersistenceScheduler(hw.Storage, cfg.EEPROMTimeout(), cfg.EEPROMValid),
		park:           NewParkCoordinator(cfg),
		buttonAcc:      NewButtonAccelerator(cfg),
		statusCallback: statusCallback,
	}
	c.restore()
	c.status = c.snapshot()
	return c, nil
}

// restore seeds every axis from storage, or from its park position (else its
// minimum) when the stored record cannot be trusted.
func (c *Controller) restore() {
	rec, ok := c.persist.Restore()
	c.known = ok
	saved := map[rotator.Axis]int{rotator.Azimuth: rec.Azimuth, rotator.Elevation: rec.Elevation}
	for _, ax := range c.tracker.Axes() {
		pos := ax.Min
		if p := c.park.positions[ax.ID]; p != nil {
			pos = *p
		}
		if ok {
			pos = saved[ax.ID]
		}
		if c.tracker.Seed(ax.ID, pos) {
			log.Printf("%v: saved position %d outside %d..%d", ax.ID, pos, ax.Min, ax.Max)
		}
	}
	if !ok {
		log.Printf("position unknown; assuming az=%d el=%d", c.position(rotator.Azimuth), c.position(rotator.Elevation))
	}
}

func (c *Controller) position(a rotator.Axis) int {
	if ax := c.tracker.Axis(a); ax != nil {
		return ax.Current
	}
	return 0
}

// PulseEdge queues a raw rising edge seen on an axis pulse line.
// It is safe to call from any goroutine and has the rotator.PulseSink shape.
func (c *Controller) PulseEdge(a rotator.Axis, at time.Time) {
	c.queue.push(event{kind: pulseEvent, axis: a, at: at})
}

func (c *Controller) setPosition(a rotator.Axis, angle float64) {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		log.Printf("%v: ignoring target %v", a, angle)
		return
	}
	// Keep the conversion in range; SetTarget clamps to the axis limits.
	angle = math.Max(math.MinInt32, math.Min(math.MaxInt32, math.Round(angle)))
	c.queue.push(event{kind: targetEvent, axis: a, position: int(angle)})
}

// SetAzimuthPosition commands a new azimuth target in degrees.
func (c *Controller) SetAzimuthPosition(angle float64) {
	c.setPosition(rotator.Azimuth, angle)
}

// SetElevationPosition commands a new elevation target in degrees.
func (c *Controller) SetElevationPosition(angle float64) {
	c.setPosition(rotator.Elevation, angle)
}

// StopAzimuth makes the current azimuth the target.
func (c *Controller) StopAzimuth() {
	c.queue.push(event{kind: stopEvent, axis: rotator.Azimuth})
}

// StopElevation makes the current elevation the target.
func (c *Controller) StopElevation() {
	c.queue.push(event{kind: stopEvent, axis: rotator.Elevation})
}

// Stop stops both axes.
func (c *Controller) Stop() {
	c.StopAzimuth()
	c.StopElevation()
}

// Park sends the configured axes to their park positions.
func (c *Controller) Park() {
	c.queue.push(event{kind: parkEvent})
}

// Status returns the most recent snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Run ticks the controller until ctx is done, then de-energizes every relay.
func (c *Controller) Run(ctx context.Context) error {
	t := time.NewTicker(c.cfg.Tick())
	defer t.Stop()
	defer c.Shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		c.Tick()
	}
}

// Shutdown switches every relay off. Only call it from the goroutine that
// runs Tick, or after that goroutine has finished.
func (c *Controller) Shutdown() {
	c.motion.Shutdown(c.tracker.Axes())
	c.publish()
}

// Tick runs one pass of the control loop.
func (c *Controller) Tick() {
	now := c.clock.Now()
	for _, ev := range c.queue.drain() {
		c.handle(ev)
	}
	c.pollButtons(now)

	moving, stopped := false, false
	for _, ax := range c.tracker.Axes() {
		t := c.motion.Step(ax, now)
		if t.Stopped() {
			stopped = true
		}
		if t.To != StateIdle {
			moving = true
		}
	}
	if c.park.Check(c.tracker, c.motion) {
		c.parked = true
	}

	if moving {
		c.persist.Cancel()
	} else if stopped {
		c.persist.Schedule(now)
	}
	if c.persist.Step(now, c.position(rotator.Azimuth), c.position(rotator.Elevation)) {
		c.known = true
	}
	c.publish()
}

func (c *Controller) handle(ev event) {
	if ev.kind != pulseEvent {
		c.parked = false
	}
	switch ev.kind {
	case pulseEvent:
		if c.tracker.Axis(ev.axis) == nil || !c.debouncer.Accept(ev.axis, ev.at) {
			return
		}
		c.tracker.ApplyPulse(ev.axis, ev.at)
	case targetEvent:
		if c.tracker.Axis(ev.axis) == nil {
			log.Printf("%v: not fitted; ignoring target %d", ev.axis, ev.position)
			return
		}
		c.park.Cancel(ev.axis)
		c.motion.Release(ev.axis)
		if got, clamped := c.tracker.SetTarget(ev.axis, ev.position); clamped {
			log.Printf("%v: target %d out of range; clamped to %d", ev.axis, ev.position, got)
		}
	case stopEvent:
		ax := c.tracker.Axis(ev.axis)
		if ax == nil {
			return
		}
		c.park.Cancel(ev.axis)
		c.motion.Release(ev.axis)
		c.tracker.SetTarget(ev.axis, ax.Current)
	case parkEvent:
		parked := c.park.Request(c.tracker)
		if len(parked) == 0 {
			log.Printf("park requested but no park position configured")
		}
		for _, a := range parked {
			c.motion.Release(a)
		}
	}
}

func (c *Controller) pollButtons(now time.Time) {
	if c.buttons == nil || !c.buttonAcc.Due(now) {
		return
	}
	for _, b := range rotator.AllButtons {
		a, dir := b.Target()
		if c.tracker.Axis(a) == nil {
			continue
		}
		pressed, err := c.buttons.Pressed(b)
		if err != nil {
			log.Printf("reading button %v: %v", b, err)
			pressed = false
		}
		delta := c.buttonAcc.Sample(b, pressed, now)
		if delta == 0 {
			continue
		}
		c.park.Cancel(a)
		c.parked = false
		c.motion.Release(a)
		c.tracker.Nudge(a, dir.Sign()*delta)
	}
}

func (c *Controller) axisStatus(a rotator.Axis) AxisStatus {
	ax := c.tracker.Axis(a)
	if ax == nil {
		return AxisStatus{State: StateIdle.String(), Direction: rotator.Idle.String()}
	}
	return AxisStatus{
		Fitted:    true,
		Position:  ax.Current,
		Target:    ax.Target,
		State:     c.motion.State(a).String(),
		Direction: ax.Direction.String(),
		Parking:   c.park.Parking(a),
		Halted:    c.motion.Halted(a),
	}
}

func (c *Controller) snapshot() Status {
	return Status{
		Azimuth:       c.axisStatus(rotator.Azimuth),
		Elevation:     c.axisStatus(rotator.Elevation),
		PositionKnown: c.known,
		FlushPending:  c.persist.Pending(),
		Parked:        c.parked,
	}
}

func (c *Controller) publish() {
	status := c.snapshot()
	c.mu.Lock()
	changed := status != c.status
	c.status = status
	c.mu.Unlock()
	if changed && c.statusCallback != nil {
		c.statusCallback(status)
	}
}
