package spid

import (
	"math/rand"
	"testing"
	"time"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDebouncer(t *testing.T) {
	d := NewPulseDebouncer(10 * time.Millisecond)
	for _, test := range []struct {
		axis   rotator.Axis
		offset time.Duration
		want   bool
	}{
		{rotator.Azimuth, 0, true},
		{rotator.Azimuth, 3 * time.Millisecond, false},
		{rotator.Azimuth, 9 * time.Millisecond, false},
		// Lines are independent.
		{rotator.Elevation, 9 * time.Millisecond, true},
		{rotator.Azimuth, 10 * time.Millisecond, true},
		{rotator.Azimuth, 19 * time.Millisecond, false},
		{rotator.Elevation, 15 * time.Millisecond, false},
		{rotator.Azimuth, 400 * time.Millisecond, true},
		// Out-of-order edges are noise.
		{rotator.Azimuth, 399 * time.Millisecond, false},
	} {
		if got := d.Accept(test.axis, t0.Add(test.offset)); got != test.want {
			t.Errorf("Accept(%v, +%v) = %v, want %v", test.axis, test.offset, got, test.want)
		}
	}
}

func TestDebouncerGaps(t *testing.T) {
	const interval = 10 * time.Millisecond
	rng := rand.New(rand.NewSource(1))
	d := NewPulseDebouncer(interval)
	at := t0
	var accepted []time.Time
	raw := 0
	for i := 0; i < 5000; i++ {
		at = at.Add(time.Duration(rng.Intn(25)) * time.Millisecond / 2)
		raw++
		if d.Accept(rotator.Azimuth, at) {
			accepted = append(accepted, at)
		}
	}
	if len(accepted) > raw || len(accepted) == 0 {
		t.Fatalf("accepted %d of %d edges", len(accepted), raw)
	}
	for i := 1; i < len(accepted); i++ {
		if gap := accepted[i].Sub(accepted[i-1]); gap < interval {
			t.Fatalf("accepted pulses %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestButtonAccelerator(t *testing.T) {
	cfg := config.DefaultController()
	b := NewButtonAccelerator(cfg)

	if !b.Due(t0) {
		t.Fatal("first sample not due")
	}
	if b.Due(t0.Add(199 * time.Millisecond)) {
		t.Error("sample due before the read interval elapsed")
	}

	total := 0
	for i := 0; i <= 20; i++ {
		now := t0.Add(time.Duration(i) * 200 * time.Millisecond)
		want := 1
		if time.Duration(i)*200*time.Millisecond > 2*time.Second {
			want = 5
		}
		got := b.Sample(rotator.ButtonCW, true, now)
		if got != want {
			t.Errorf("sample %d (+%v): got %d, want %d", i, now.Sub(t0), got, want)
		}
		total += got
	}
	if total != 11*1+10*5 {
		t.Errorf("total increment %d, want %d", total, 61)
	}
	if !b.Fast(rotator.ButtonCW) {
		t.Error("fast mode not active after long hold")
	}

	if got := b.Sample(rotator.ButtonCW, false, t0.Add(5*time.Second)); got != 0 {
		t.Errorf("released button moved target by %d", got)
	}
	if b.Fast(rotator.ButtonCW) {
		t.Error("fast mode survived release")
	}
	if got := b.Sample(rotator.ButtonCW, true, t0.Add(6*time.Second)); got != 1 {
		t.Errorf("fresh press moved target by %d, want 1", got)
	}
}

func TestButtonAcceleratorDisabled(t *testing.T) {
	cfg := config.DefaultController()
	cfg.Buttons.Fast = false
	b := NewButtonAccelerator(cfg)
	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i) * 200 * time.Millisecond)
		if got := b.Sample(rotator.ButtonUp, true, now); got != 1 {
			t.Fatalf("sample %d: got %d, want 1", i, got)
		}
	}
}

func TestTrackerClampsAndCountsPulses(t *testing.T) {
	tr := NewPositionTracker(config.DefaultController())
	if clamped := tr.Seed(rotator.Azimuth, 358); clamped {
		t.Error("358 reported as clamped")
	}
	if got, clamped := tr.SetTarget(rotator.Azimuth, 400); got != 360 || !clamped {
		t.Errorf("SetTarget(400) = %d, %v; want 360, true", got, clamped)
	}
	if got, clamped := tr.SetTarget(rotator.Elevation, -3); got != 0 || !clamped {
		t.Errorf("SetTarget(-3) = %d, %v; want 0, true", got, clamped)
	}

	az := tr.Axis(rotator.Azimuth)
	if tr.ApplyPulse(rotator.Azimuth, t0) {
		t.Error("pulse counted before the axis was ever driven")
	}
	az.Direction, az.LastDirection = rotator.Increasing, rotator.Increasing
	for i := 0; i < 5; i++ {
		tr.ApplyPulse(rotator.Azimuth, t0.Add(time.Duration(i)*time.Second))
	}
	if az.Current != 360 {
		t.Errorf("current = %d after pulses past the limit, want 360", az.Current)
	}
	if want := t0.Add(4 * time.Second); !az.LastPulse.Equal(want) {
		t.Errorf("LastPulse = %v, want %v", az.LastPulse, want)
	}

	// Coasting pulses count in the last driven direction.
	az.Direction = rotator.Idle
	az.LastDirection = rotator.Decreasing
	tr.ApplyPulse(rotator.Azimuth, t0.Add(5*time.Second))
	if az.Current != 359 {
		t.Errorf("coasting pulse: current = %d, want 359", az.Current)
	}

	az.CalibrationPending = true
	if tr.ApplyPulse(rotator.Azimuth, t0.Add(6*time.Second)) {
		t.Error("pulse counted during backoff")
	}
}

func TestTrackerWithoutElevation(t *testing.T) {
	cfg := config.DefaultController()
	cfg.Elevation = false
	tr := NewPositionTracker(cfg)
	if tr.Axis(rotator.Elevation) != nil {
		t.Fatal("elevation axis fitted")
	}
	if len(tr.Axes()) != 1 {
		t.Errorf("got %d axes, want 1", len(tr.Axes()))
	}
	if tr.ApplyPulse(rotator.Elevation, t0) {
		t.Error("elevation pulse counted")
	}
}

func TestStallDetector(t *testing.T) {
	s := NewStallDetector(700 * time.Millisecond)
	ax := &Axis{ID: rotator.Azimuth, Max: 360}
	s.Arm(ax, t0)
	if s.Stalled(ax, true, t0.Add(time.Hour)) {
		t.Error("idle axis reported stalled")
	}
	ax.Direction = rotator.Increasing
	if s.Stalled(ax, true, t0.Add(700*time.Millisecond)) {
		t.Error("stalled at exactly the timeout")
	}
	if !s.Stalled(ax, true, t0.Add(701*time.Millisecond)) {
		t.Error("not stalled after the timeout")
	}
	if s.Stalled(ax, false, t0.Add(time.Hour)) {
		t.Error("axis with its relay open reported stalled")
	}
	ax.LastPulse = t0.Add(600 * time.Millisecond)
	if s.Stalled(ax, true, t0.Add(1200*time.Millisecond)) {
		t.Error("pulse did not reset the stall timer")
	}
}

func TestCalibrationClockWaitsForRelay(t *testing.T) {
	c := NewCalibrationController(50 * time.Millisecond)
	ax := &Axis{ID: rotator.Elevation, Max: 90}
	if got := c.Begin(ax, rotator.Decreasing); got != rotator.Increasing {
		t.Errorf("Begin = %v, want increasing", got)
	}
	if !ax.CalibrationPending {
		t.Error("calibration not pending after Begin")
	}
	if c.Done(t0.Add(time.Hour)) {
		t.Error("backoff done before the relay closed")
	}
	c.Start(t0)
	c.Start(t0.Add(40 * time.Millisecond))
	if c.Done(t0.Add(49 * time.Millisecond)) {
		t.Error("backoff done early")
	}
	if !c.Done(t0.Add(50 * time.Millisecond)) {
		t.Error("backoff not done after 50ms of relay-on time")
	}
	c.Finish(ax)
	if ax.CalibrationPending || c.Done(t0.Add(time.Hour)) {
		t.Error("calibration survived Finish")
	}
	c.Start(t0)
	if c.Done(t0.Add(time.Hour)) {
		t.Error("Start without Begin ran a backoff")
	}
}

func TestEndstop(t *testing.T) {
	ax := &Axis{ID: rotator.Elevation, Min: 0, Max: 90}
	for _, test := range []struct {
		target int
		dir    rotator.Direction
		want   int
		ok     bool
	}{
		{0, rotator.Decreasing, 0, true},
		{90, rotator.Increasing, 90, true},
		{0, rotator.Increasing, 0, false},
		{45, rotator.Decreasing, 0, false},
		{90, rotator.Decreasing, 0, false},
	} {
		ax.Target = test.target
		got, ok := Endstop(ax, test.dir)
		if got != test.want || ok != test.ok {
			t.Errorf("Endstop(target=%d, %v) = %d, %v; want %d, %v", test.target, test.dir, got, ok, test.want, test.ok)
		}
	}
}

func TestEventQueue(t *testing.T) {
	var q eventQueue
	q.push(event{kind: pulseEvent, axis: rotator.Azimuth, at: t0})
	q.push(event{kind: parkEvent})
	if got := q.drain(); len(got) != 2 || got[1].kind != parkEvent {
		t.Fatalf("drain = %+v", got)
	}
	if got := q.drain(); len(got) != 0 {
		t.Errorf("second drain = %+v, want empty", got)
	}
	q.push(event{kind: stopEvent})
	if got := q.drain(); len(got) != 1 || got[0].kind != stopEvent {
		t.Errorf("drain after reuse = %+v", got)
	}
}
