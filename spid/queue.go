package spid

import (
	"sync"
	"time"

	"github.com/w1xm/spid_controller/rotator"
)

type eventKind int

const (
	pulseEvent eventKind = iota
	targetEvent
	stopEvent
	parkEvent
)

type event struct {
	kind     eventKind
	axis     rotator.Axis
	at       time.Time
	position int
}

// eventQueue hands events from pulse capture and command goroutines to the
// control loop. Producers only append; the loop drains once per tick.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	spare  []event
}

func (q *eventQueue) push(ev event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// drain returns the queued events. The returned slice is valid until the
// next call.
func (q *eventQueue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = q.spare[:0]
	q.spare = out
	return out
}
