package main

import (
	"context"
	"fmt"
	"log"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/eeprom"
	"github.com/w1xm/spid_controller/gpio"
	"github.com/w1xm/spid_controller/relayboard"
	"github.com/w1xm/spid_controller/rotator"
	"github.com/w1xm/spid_controller/simulator"
	"github.com/w1xm/spid_controller/spid"
	"golang.org/x/sync/errgroup"
)

type pulseSource interface {
	SetSink(sink rotator.PulseSink)
}

// hardware is the backend chosen by the configuration.
type hardware struct {
	spid.Hardware
	source pulseSource
	sim    *simulator.Simulator
	close  func() error
}

// openHardware opens the configured backend and starts its background
// goroutines in g.
func openHardware(ctx context.Context, g *errgroup.Group, cfg *config.Config, clock rotator.Clock) (*hardware, error) {
	switch cfg.Storage.Type {
	case "memory", "file", "modbus":
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
	hw := &hardware{}
	hw.Clock = clock
	var board *relayboard.Board
	switch cfg.Hardware.Type {
	case "sim":
		sim := simulator.New(simulator.DefaultModel(), nil)
		hw.Relays, hw.Buttons, hw.source, hw.sim = sim, sim, sim, sim
		g.Go(func() error { return sim.Run(ctx, clock) })
	case "modbus":
		var err error
		board, err = relayboard.Connect(ctx, cfg.Hardware.Modbus, clock, nil)
		if err != nil {
			return nil, fmt.Errorf("connecting relay board: %w", err)
		}
		hw.Relays, hw.Buttons, hw.source = board, board, board
	case "gpio":
		pins, err := gpio.OpenRPi()
		if err != nil {
			return nil, err
		}
		b := gpio.New(pins, cfg.Hardware.GPIO, clock, nil)
		hw.Relays, hw.Buttons, hw.source = b, b, b
		hw.close = b.Close
		g.Go(func() error { return b.Run(ctx) })
	default:
		return nil, fmt.Errorf("unknown hardware type %q", cfg.Hardware.Type)
	}

	switch cfg.Storage.Type {
	case "memory":
		hw.Storage = &eeprom.Memory{}
	case "file":
		hw.Storage = &eeprom.File{Path: cfg.Storage.Path}
	case "modbus":
		hw.Storage = board
	}
	return hw, nil
}

// Attach routes pulse edges to the controller. A simulated rotator is first
// moved to the restored position.
func (hw *hardware) Attach(c *spid.Controller) {
	if hw.sim != nil {
		st := c.Status()
		hw.sim.SetPosition(rotator.Azimuth, float64(st.Azimuth.Position)+0.5)
		hw.sim.SetPosition(rotator.Elevation, float64(st.Elevation.Position)+0.5)
	}
	hw.source.SetSink(c.PulseEdge)
}

func (hw *hardware) Close() {
	if hw.close == nil {
		return
	}
	if err := hw.close(); err != nil {
		log.Printf("closing hardware: %v", err)
	}
}
