// Package relayboard drives a rotator through a Modbus RTU relay and input
// module: the motor relays are coils, the pulse and button lines are
// discrete inputs, and the saved position can live in holding registers.
package relayboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/eeprom"
	"github.com/w1xm/spid_controller/internal/modbus"
	"github.com/w1xm/spid_controller/rotator"
)

// Bus is the subset of a Modbus client the board uses.
type Bus interface {
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

type Board struct {
	cfg   config.ModbusConfig
	bus   Bus
	clock rotator.Clock

	// first and count span every discrete input we read.
	first, count uint16

	mu      sync.Mutex
	sink    rotator.PulseSink
	sampled bool
	pulses  [len(rotator.Axes)]bool
	buttons [len(rotator.AllButtons)]bool
}

// Connect opens the module described by cfg and starts polling its inputs.
// Rising edges on the pulse lines are delivered to sink.
func Connect(ctx context.Context, cfg config.ModbusConfig, clock rotator.Clock, sink rotator.PulseSink) (*Board, error) {
	client := &modbus.Client{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		SlaveId:  cfg.SlaveID,
		URL:      cfg.URL,
		Password: cfg.Password,
		Interval: time.Duration(cfg.PollMs) * time.Millisecond,
	}
	b := New(client, cfg, clock, sink)
	client.Poll = b.Poll
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// New wraps an already connected bus. The caller is responsible for calling
// Poll.
func New(bus Bus, cfg config.ModbusConfig, clock rotator.Clock, sink rotator.PulseSink) *Board {
	b := &Board{cfg: cfg, bus: bus, clock: clock, sink: sink}
	lo, hi := cfg.Pulses[0], cfg.Pulses[0]
	for _, in := range append(cfg.Pulses[:], cfg.Buttons[:]...) {
		if in < lo {
			lo = in
		}
		if in > hi {
			hi = in
		}
	}
	b.first, b.count = lo, hi-lo+1
	return b
}

// SetSink replaces the pulse receiver.
func (b *Board) SetSink(sink rotator.PulseSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = sink
}

// Poll samples every input once. The first sample only primes the edge
// detector.
func (b *Board) Poll() error {
	results, err := b.bus.ReadDiscreteInputs(b.first, b.count)
	if err != nil {
		return err
	}
	now := b.clock.Now()
	inputs := modbus.BytesToBits(results)
	level := func(in uint16) bool {
		i := int(in - b.first)
		return i < len(inputs) && inputs[i]
	}

	b.mu.Lock()
	var rising []rotator.Axis
	for _, a := range rotator.Axes {
		v := level(b.cfg.Pulses[a])
		if b.sampled && v && !b.pulses[a] {
			rising = append(rising, a)
		}
		b.pulses[a] = v
	}
	for _, btn := range rotator.AllButtons {
		b.buttons[btn] = level(b.cfg.Buttons[btn])
	}
	b.sampled = true
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		for _, a := range rising {
			sink(a, now)
		}
	}
	return nil
}

func (b *Board) SetRelay(r rotator.Relay, on bool) error {
	if _, err := b.bus.WriteSingleCoil(b.cfg.Relays[r], modbus.CoilValue(on)); err != nil {
		return fmt.Errorf("coil %d: %w", b.cfg.Relays[r], err)
	}
	return nil
}

// Pressed returns the button level from the latest poll. Buttons read as
// released until the first poll succeeds.
func (b *Board) Pressed(btn rotator.Button) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buttons[btn], nil
}

// Load reads the position record from three holding registers.
func (b *Board) Load() (rotator.Record, error) {
	results, err := b.bus.ReadHoldingRegisters(b.cfg.RecordRegister, 3)
	if err != nil {
		return rotator.Record{}, fmt.Errorf("reading record registers: %w", err)
	}
	words := modbus.BytesToWords(results)
	if len(words) != 3 {
		return rotator.Record{}, fmt.Errorf("reading record registers: got %d words", len(words))
	}
	return eeprom.FromWords([3]uint16{words[0], words[1], words[2]}), nil
}

// Save writes the position record to three holding registers.
func (b *Board) Save(rec rotator.Record) error {
	words := eeprom.Words(rec)
	if _, err := b.bus.WriteMultipleRegisters(b.cfg.RecordRegister, 3, modbus.WordsToBytes(words[:])); err != nil {
		return fmt.Errorf("writing record registers: %w", err)
	}
	return nil
}
