// Package status provides a thread-safe status tracker for the sensor node.
// It is written by the collection loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/waggle-node/internal/frame"
	"github.com/sweeney/waggle-node/internal/logic"
	"github.com/sweeney/waggle-node/internal/node"
)

// Config contains node configuration for display.
type Config struct {
	HiveID            uint8
	LaneMask          uint8
	Extended          bool
	SerialPort        string
	CollectIntervalMs int64
	CheckIntervalMs   int64
	Timing            logic.Timing
	HTTPAddr          string
}

// CycleSummary describes the most recent collection cycle.
type CycleSummary struct {
	At        time.Time
	Sequence  uint16
	Flags     frame.Flags
	BeesIn    uint16
	BeesOut   uint16
	PeriodMs  uint32
	StuckMask uint8
	WireLen   int
	WriteErr  string
}

// Snapshot is a point-in-time view of node state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	StartTime   time.Time
	Now         time.Time
	Config      Config
	Cycles      int
	WriteErrors int
	TotalIn     uint64
	TotalOut    uint64
	LastCycle   *CycleSummary
	Lanes       [logic.MaxLanes]logic.State
	LinkOpen    bool
}

// Uptime returns the duration since the node started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable node state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// RecordCycle folds a completed cycle into the running totals. err is the
// error returned alongside the report, if any; the link is marked down on a
// failed write and up again on the next successful one.
func (t *Tracker) RecordCycle(at time.Time, r node.Report, err error) {
	summary := &CycleSummary{
		At:        at,
		Sequence:  r.Sequence,
		Flags:     r.Flags,
		BeesIn:    r.Snapshot.BeesIn,
		BeesOut:   r.Snapshot.BeesOut,
		PeriodMs:  r.Snapshot.PeriodMs,
		StuckMask: r.Snapshot.StuckMask,
		WireLen:   len(r.Wire),
	}
	if err != nil {
		summary.WriteErr = err.Error()
	}

	t.mu.Lock()
	t.snap.Cycles++
	if err != nil {
		t.snap.WriteErrors++
	}
	t.snap.LinkOpen = err == nil
	t.snap.TotalIn += uint64(r.Snapshot.BeesIn)
	t.snap.TotalOut += uint64(r.Snapshot.BeesOut)
	t.snap.LastCycle = summary
	t.mu.Unlock()
}

// SetLaneStates records the current detector state of each lane.
func (t *Tracker) SetLaneStates(lanes [logic.MaxLanes]logic.State) {
	t.mu.Lock()
	t.snap.Lanes = lanes
	t.mu.Unlock()
}

// SetLinkOpen sets whether the serial link is open. RecordCycle updates it
// from each write.
func (t *Tracker) SetLinkOpen(open bool) {
	t.mu.Lock()
	t.snap.LinkOpen = open
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the node state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastCycle != nil {
		c := *s.LastCycle
		s.LastCycle = &c
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
