package gpio

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
	"github.com/w1xm/spid_controller/simulator"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakePins struct {
	outputs map[int]bool
	inputs  map[int]bool
	level   map[int]bool
	closed  bool
}

func newFakePins() *fakePins {
	return &fakePins{outputs: map[int]bool{}, inputs: map[int]bool{}, level: map[int]bool{}}
}

func (f *fakePins) Output(pin int) { f.outputs[pin] = true }

// Input pulls the line up, as the real driver does.
func (f *fakePins) Input(pin int) {
	f.inputs[pin] = true
	f.level[pin] = true
}

func (f *fakePins) Write(pin int, high bool) { f.level[pin] = high }
func (f *fakePins) Read(pin int) bool { return f.level[pin] }
func (f *fakePins) Close() error { f.closed = true; return nil }

func TestSetup(t *testing.T) {
	cfg := config.Default().Hardware.GPIO
	pins := newFakePins()
	New(pins, cfg, simulator.NewClock(t0), nil)
	for _, pin := range cfg.Relays {
		if !pins.outputs[pin] || pins.level[pin] {
			t.Errorf("relay pin %d: output=%v level=%v", pin, pins.outputs[pin], pins.level[pin])
		}
	}
	for _, pin := range append(cfg.Pulses[:], cfg.Buttons[:]...) {
		if !pins.inputs[pin] {
			t.Errorf("pin %d not an input", pin)
		}
	}
}

func TestRelayPolarity(t *testing.T) {
	for _, active := range []string{"high", "low"} {
		cfg := config.Default().Hardware.GPIO
		cfg.RelayActive = active
		pins := newFakePins()
		b := New(pins, cfg, simulator.NewClock(t0), nil)
		pin := cfg.Relays[rotator.ElevationDown]
		b.SetRelay(rotator.ElevationDown, true)
		if got, want := pins.level[pin], active == "high"; got != want {
			t.Errorf("%s: energized level %v, want %v", active, got, want)
		}
		b.SetRelay(rotator.ElevationDown, false)
		if got, want := pins.level[pin], active == "low"; got != want {
			t.Errorf("%s: released level %v, want %v", active, got, want)
		}
	}
}

func TestButtonsActiveLow(t *testing.T) {
	cfg := config.Default().Hardware.GPIO
	pins := newFakePins()
	b := New(pins, cfg, simulator.NewClock(t0), nil)
	pins.level[cfg.Buttons[rotator.ButtonUp]] = false
	for _, btn := range rotator.AllButtons {
		got, _ := b.Pressed(btn)
		if want := btn == rotator.ButtonUp; got != want {
			t.Errorf("Pressed(%v) = %v, want %v", btn, got, want)
		}
	}
}

func TestPulseClosures(t *testing.T) {
	cfg := config.Default().Hardware.GPIO
	pins := newFakePins()
	clock := simulator.NewClock(t0)
	var got []rotator.Axis
	b := New(pins, cfg, clock, func(a rotator.Axis, at time.Time) {
		if !at.Equal(clock.Now()) {
			t.Errorf("edge stamped %v, want %v", at, clock.Now())
		}
		got = append(got, a)
	})
	az, el := cfg.Pulses[rotator.Azimuth], cfg.Pulses[rotator.Elevation]
	// Closed at startup: not an edge.
	pins.level[el] = false
	for _, levels := range [][2]bool{
		{true, false},
		{false, false},
		{false, true},
		{true, false},
	} {
		clock.Advance(time.Millisecond)
		pins.level[az], pins.level[el] = levels[0], levels[1]
		b.Poll()
	}
	if diff := cmp.Diff([]rotator.Axis{rotator.Azimuth, rotator.Elevation}, got); diff != "" {
		t.Errorf("unexpected closures: got(-)/want(+):\n%s", diff)
	}
}

func TestCloseReleasesRelays(t *testing.T) {
	cfg := config.Default().Hardware.GPIO
	pins := newFakePins()
	b := New(pins, cfg, simulator.NewClock(t0), nil)
	b.SetRelay(rotator.AzimuthCW, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Run(ctx); err != context.Canceled {
		t.Errorf("Run = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if pins.level[cfg.Relays[rotator.AzimuthCW]] || !pins.closed {
		t.Error("relay left energized or pins not closed")
	}
}
