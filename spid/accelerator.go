package spid

import (
	"time"

	"github.com/w1xm/spid_controller/config"
	"github.com/w1xm/spid_controller/rotator"
)

type holdState struct {
	pressed      bool
	pressedSince time.Time
	fast         bool
}

// ButtonAccelerator turns button hold time into target increments.
// Buttons are sampled once per read interval; each sample of a held button
// moves the target 1 degree, or the fast increment once the button has been
// held longer than the fast threshold.
type ButtonAccelerator struct {
	interval  time.Duration
	fast      bool
	fastAfter time.Duration
	fastIncr  int

	sampled  bool
	lastRead time.Time
	buttons  [len(rotator.AllButtons)]holdState
}

func NewButtonAccelerator(cfg config.Controller) *ButtonAccelerator {
	return &ButtonAccelerator{
		interval:  cfg.ButtonRead(),
		fast:      cfg.Buttons.Fast,
		fastAfter: cfg.ButtonFastTime(),
		fastIncr:  cfg.Buttons.FastIncr,
	}
}

// Due reports whether a sample is due and, if so, starts a new read interval.
func (b *ButtonAccelerator) Due(now time.Time) bool {
	if b.sampled && now.Sub(b.lastRead) < b.interval {
		return false
	}
	b.sampled = true
	b.lastRead = now
	return true
}

// Sample records the state of one button and returns the number of degrees
// its axis target should move.
func (b *ButtonAccelerator) Sample(btn rotator.Button, pressed bool, now time.Time) int {
	st := &b.buttons[btn]
	if !pressed {
		*st = holdState{}
		return 0
	}
	if !st.pressed {
		st.pressed = true
		st.pressedSince = now
	}
	if b.fast && now.Sub(st.pressedSince) > b.fastAfter {
		st.fast = true
	}
	if st.fast {
		return b.fastIncr
	}
	return 1
}

// Fast reports whether a button is in accelerated mode.
func (b *ButtonAccelerator) Fast(btn rotator.Button) bool {
	return b.buttons[btn].fast
}
