package spid

import (
	"time"

	"github.com/w1xm/spid_controller/rotator"
)

// PulseDebouncer drops edges that follow the previously accepted edge on the
// same line by less than the debounce interval.
type PulseDebouncer struct {
	interval time.Duration
	last     map[rotator.Axis]time.Time
}

func NewPulseDebouncer(interval time.Duration) *PulseDebouncer {
	return &PulseDebouncer{
		interval: interval,
		last:     make(map[rotator.Axis]time.Time),
	}
}

// Accept reports whether an edge seen at the given time is a genuine pulse.
func (d *PulseDebouncer) Accept(a rotator.Axis, at time.Time) bool {
	if last, ok := d.last[a]; ok && at.Sub(last) < d.interval {
		return false
	}
	d.last[a] = at
	return true
}
