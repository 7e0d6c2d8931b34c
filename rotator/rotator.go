package rotator

// Rotator is the command surface offered to host protocol layers.
// Positions are in degrees; fractional values are rounded by the controller.
type Rotator interface {
	Stop()
	StopAzimuth()
	StopElevation()
	SetAzimuthPosition(angle float64)
	SetElevationPosition(angle float64)
	Park()
}

type StatusCallback func(status Status)

type Status interface {
	AzimuthPosition() float64
	ElevationPosition() float64

	Clone() Status
}

// Targeter is implemented by statuses that know the commanded position.
type Targeter interface {
	AzimuthTarget() float64
	ElevationTarget() float64
}

// Mover is implemented by statuses that report motion per axis.
type Mover interface {
	AzimuthMoving() bool
	ElevationMoving() bool
}

// Health is implemented by statuses that report controller faults.
type Health interface {
	// Halted reports an axis stopped by a stall.
	Halted() bool
	// Homed reports whether the position is trusted.
	Homed() bool
}
