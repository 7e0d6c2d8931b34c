package spid

import (
	"log"
	"time"

	"github.com/w1xm/spid_controller/rotator"
)

// PersistenceScheduler defers position writes until the rotator has been at
// rest for the flush delay, so small adjustments do not wear the storage.
type PersistenceScheduler struct {
	storage rotator.Storage
	delay   time.Duration
	marker  uint16

	pending  bool
	deadline time.Time
	failing  bool

	// last is the record known to be in storage.
	last    rotator.Record
	hasLast bool
}

func NewPersistenceScheduler(storage rotator.Storage, delay time.Duration, marker uint16) *PersistenceScheduler {
	return &PersistenceScheduler{storage: storage, delay: delay, marker: marker}
}

// Restore reads the stored record at startup. The record is only trusted
// when its validity marker matches.
func (p *PersistenceScheduler) Restore() (rotator.Record, bool) {
	rec, err := p.storage.Load()
	if err != nil {
		log.Printf("reading saved position: %v", err)
		return rotator.Record{}, false
	}
	if rec.Marker != p.marker {
		log.Printf("saved position not valid (marker %d, want %d)", rec.Marker, p.marker)
		return rec, false
	}
	p.last = rec
	p.hasLast = true
	return rec, true
}

// Schedule (re)starts the flush timer at the moment motion stopped.
func (p *PersistenceScheduler) Schedule(stopped time.Time) {
	p.pending = true
	p.deadline = stopped.Add(p.delay)
}

// Cancel drops a pending flush because motion resumed.
func (p *PersistenceScheduler) Cancel() {
	p.pending = false
}

// Pending reports whether a flush is scheduled.
func (p *PersistenceScheduler) Pending() bool {
	return p.pending
}

// Step writes the positions if the pending flush is due. A failed write stays
// pending and is retried on the next step.
func (p *PersistenceScheduler) Step(now time.Time, azimuth, elevation int) bool {
	if !p.pending || now.Before(p.deadline) {
		return false
	}
	rec := rotator.Record{Marker: p.marker, Azimuth: azimuth, Elevation: elevation}
	if p.hasLast && rec == p.last {
		p.pending = false
		return false
	}
	if err := p.storage.Save(rec); err != nil {
		if !p.failing {
			log.Printf("saving position: %v; will retry", err)
		}
		p.failing = true
		return false
	}
	if p.failing {
		log.Printf("saved position after retry")
	}
	p.failing = false
	p.pending = false
	p.last = rec
	p.hasLast = true
	return true
}
