package main

import (
	"context"
	"testing"
	"time"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/eeprom"
	"github.com/w1xm/spid_controller/rotator"
	"github.com/w1xm/spid_controller/simulator"
	"github.com/w1xm/spid_controller/spid"
	"golang.org/x/sync/errgroup"
)

func TestSimulatedHardware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	cfg := config.Default()
	clock := simulator.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	hw, err := openHardware(ctx, g, &cfg, clock)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := hw.Storage.(*eeprom.Memory); !ok {
		t.Errorf("storage is %T, want memory", hw.Storage)
	}
	c, err := spid.New(cfg.Controller, hw.Hardware, nil)
	if err != nil {
		t.Fatal(err)
	}
	hw.Attach(c)
	if got := hw.sim.Position(rotator.Azimuth); got != 42.5 {
		t.Errorf("simulator azimuth %v, want the park position", got)
	}
	cancel()
	g.Wait()
	hw.Close()
}

func TestUnknownStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "tape"
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	if _, err := openHardware(ctx, g, &cfg, rotator.SystemClock{}); err == nil {
		t.Error("openHardware accepted an unknown storage type")
	}
	cancel()
	g.Wait()
}

func TestRunStopsHardwareOnSetupError(t *testing.T) {
	cfg := config.Default()
	cfg.Controller.TickMs = 0
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), &cfg, rotator.SystemClock{}) }()
	select {
	case err := <-done:
		if err == nil {
			t.Error("run accepted a zero tick")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return; hardware goroutines still running")
	}
}
