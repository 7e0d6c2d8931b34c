package rotator

import (
	"fmt"
	"time"
)

// Axis identifies one of the two rotator motors.
type Axis int

const (
	Azimuth Axis = iota
	Elevation
)

// Axes lists every axis in a fixed order.
var Axes = [...]Axis{Azimuth, Elevation}

func (a Axis) String() string {
	switch a {
	case Azimuth:
		return "azimuth"
	case Elevation:
		return "elevation"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Direction is the sense a motor is driven in.
type Direction int

const (
	Idle Direction = iota
	Increasing
	Decreasing
)

func (d Direction) String() string {
	switch d {
	case Idle:
		return "idle"
	case Increasing:
		return "increasing"
	case Decreasing:
		return "decreasing"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Reverse returns the opposite direction. Idle stays Idle.
func (d Direction) Reverse() Direction {
	switch d {
	case Increasing:
		return Decreasing
	case Decreasing:
		return Increasing
	}
	return Idle
}

// Sign is +1, -1 or 0.
func (d Direction) Sign() int {
	switch d {
	case Increasing:
		return 1
	case Decreasing:
		return -1
	}
	return 0
}

// Relay is one motor relay output.
type Relay int

const (
	AzimuthCW Relay = iota
	AzimuthCCW
	ElevationUp
	ElevationDown
)

// AllRelays lists every relay output.
var AllRelays = [...]Relay{AzimuthCW, AzimuthCCW, ElevationUp, ElevationDown}

func (r Relay) String() string {
	switch r {
	case AzimuthCW:
		return "az-cw"
	case AzimuthCCW:
		return "az-ccw"
	case ElevationUp:
		return "el-up"
	case ElevationDown:
		return "el-down"
	}
	return fmt.Sprintf("relay(%d)", int(r))
}

// RelayFor maps an axis and a non-idle direction to its relay.
func RelayFor(a Axis, d Direction) (Relay, bool) {
	switch {
	case a == Azimuth && d == Increasing:
		return AzimuthCW, true
	case a == Azimuth && d == Decreasing:
		return AzimuthCCW, true
	case a == Elevation && d == Increasing:
		return ElevationUp, true
	case a == Elevation && d == Decreasing:
		return ElevationDown, true
	}
	return 0, false
}

// Button is one of the front panel direction buttons.
type Button int

const (
	ButtonCW Button = iota
	ButtonCCW
	ButtonUp
	ButtonDown
)

var AllButtons = [...]Button{ButtonCW, ButtonCCW, ButtonUp, ButtonDown}

func (b Button) String() string {
	switch b {
	case ButtonCW:
		return "cw"
	case ButtonCCW:
		return "ccw"
	case ButtonUp:
		return "up"
	case ButtonDown:
		return "down"
	}
	return fmt.Sprintf("button(%d)", int(b))
}

// Target returns the axis and direction a button moves.
func (b Button) Target() (Axis, Direction) {
	switch b {
	case ButtonCW:
		return Azimuth, Increasing
	case ButtonCCW:
		return Azimuth, Decreasing
	case ButtonUp:
		return Elevation, Increasing
	}
	return Elevation, Decreasing
}

// Record is the layout persisted to non-volatile storage.
type Record struct {
	Marker    uint16
	Azimuth   int
	Elevation int
}

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// Relays drives the motor relay outputs.
type Relays interface {
	SetRelay(r Relay, on bool) error
}

// Buttons reads the front panel buttons. A true value means pressed.
type Buttons interface {
	Pressed(b Button) (bool, error)
}

// Storage reads and writes the persisted position record.
type Storage interface {
	Load() (Record, error)
	Save(Record) error
}

// PulseSink receives raw rising edges of a motor pulse line.
// Implementations must be safe to call from any goroutine.
type PulseSink func(a Axis, at time.Time)

// SystemClock reads the process monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
