// Package gpio drives a rotator wired straight to Raspberry Pi GPIO pins.
// Relays are outputs; pulse and button lines are inputs with the internal
// pull-up enabled, active low, as reed contacts and push buttons to ground
// are usually wired.
package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
)

// Pins is the pin-level driver. RPi is the real one.
type Pins interface {
	Output(pin int)
	Input(pin int)
	Write(pin int, high bool)
	Read(pin int) bool
	Close() error
}

// RPi accesses the GPIO block through go-rpio's memory mapping.
type RPi struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
}

// OpenRPi maps the GPIO registers. Requires /dev/gpiomem or root.
func OpenRPi() (*RPi, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening GPIO: %w", err)
	}
	return &RPi{pins: make(map[int]rpio.Pin)}, nil
}

func (r *RPi) Output(pin int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := rpio.Pin(pin)
	p.Output()
	r.pins[pin] = p
}

func (r *RPi) Input(pin int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := rpio.Pin(pin)
	p.Input()
	p.PullUp()
	r.pins[pin] = p
}

func (r *RPi) Write(pin int, high bool) {
	p := rpio.Pin(pin)
	if high {
		p.High()
	} else {
		p.Low()
	}
}

func (r *RPi) Read(pin int) bool {
	return rpio.Pin(pin).Read() == rpio.High
}

// Close returns every pin it touched to a floating input.
func (r *RPi) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pins {
		p.Input()
	}
	return rpio.Close()
}

type Board struct {
	cfg   config.GPIOConfig
	pins  Pins
	clock rotator.Clock
	// relayHigh is the output level that energizes a relay.
	relayHigh bool

	mu      sync.Mutex
	sink    rotator.PulseSink
	sampled bool
	pulses  [len(rotator.Axes)]bool
}

// New configures the pins and switches every relay off.
func New(pins Pins, cfg config.GPIOConfig, clock rotator.Clock, sink rotator.PulseSink) *Board {
	b := &Board{
		cfg:       cfg,
		pins:      pins,
		clock:     clock,
		relayHigh: cfg.RelayActive != "low",
		sink:      sink,
	}
	for _, pin := range cfg.Relays {
		pins.Output(pin)
		pins.Write(pin, !b.relayHigh)
	}
	for _, pin := range cfg.Pulses {
		pins.Input(pin)
	}
	for _, pin := range cfg.Buttons {
		pins.Input(pin)
	}
	return b
}

// SetSink replaces the pulse receiver.
func (b *Board) SetSink(sink rotator.PulseSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

func (b *Board) SetRelay(r rotator.Relay, on bool) error {
	b.pins.Write(b.cfg.Relays[r], on == b.relayHigh)
	return nil
}

func (b *Board) Pressed(btn rotator.Button) (bool, error) {
	return !b.pins.Read(b.cfg.Buttons[btn]), nil
}

// Poll samples the pulse lines once and delivers contact closures to the
// sink. The first sample only primes the edge detector.
func (b *Board) Poll() {
	now := b.clock.Now()
	b.mu.Lock()
	var closed []rotator.Axis
	for _, a := range rotator.Axes {
		v := !b.pins.Read(b.cfg.Pulses[a])
		if b.sampled && v && !b.pulses[a] {
			closed = append(closed, a)
		}
		b.pulses[a] = v
	}
	b.sampled = true
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		for _, a := range closed {
			sink(a, now)
		}
	}
}

// Run polls the pulse lines until ctx is done.
func (b *Board) Run(ctx context.Context) error {
	t := time.NewTicker(time.Duration(b.cfg.PollMs) * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		b.Poll()
	}
}

// Close switches every relay off and releases the pins. Call it once
// nothing drives the board any more.
func (b *Board) Close() error {
	for _, r := range rotator.AllRelays {
		b.SetRelay(r, false)
	}
	return b.pins.Close()
}
