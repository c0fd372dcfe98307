package logic

import "sync"

// Clock returns monotonic milliseconds. It may wrap.
type Clock func() uint32

// Counter owns the lane detectors of a tunnel. Edge events arrive from the
// hardware event context and snapshots from the collection cycle; both run
// under one short critical section with no allocation or I/O inside.
//
// The live methods (RecordEdge, CheckTimeouts, Snapshot) read the clock while
// holding the lock, so every lane sees timestamps in the order it handles
// them. The ...At variants take the time from the caller and exist for
// replaying recorded edges; callers must supply non-decreasing times.
type Counter struct {
	mu           sync.Mutex
	clock        Clock
	lanes        [MaxLanes]Detector
	laneMask     uint8
	lastSnapshot uint32
}

// NewCounter creates a counter for the lanes selected by laneMask (bit n =
// lane n). Bits above MaxLanes are ignored. The first counting period starts
// at the current clock reading.
func NewCounter(timing Timing, laneMask uint8, clock Clock) *Counter {
	c := &Counter{
		clock:        clock,
		laneMask:     laneMask & (1<<MaxLanes - 1),
		lastSnapshot: clock(),
	}
	for i := range c.lanes {
		c.lanes[i] = Detector{timing: timing}
	}
	return c
}

// LaneMask returns the active lanes.
func (c *Counter) LaneMask() uint8 {
	return c.laneMask
}

// Active reports whether lane is counting.
func (c *Counter) Active(lane int) bool {
	return lane >= 0 && lane < MaxLanes && c.laneMask&(1<<lane) != 0
}

// RecordEdge feeds a beam-break edge into a lane, stamped now. Edges on
// inactive lanes are dropped.
func (c *Counter) RecordEdge(lane int, beam Beam) {
	if !c.Active(lane) {
		return
	}
	c.mu.Lock()
	c.recordEdge(lane, beam, c.clock())
	c.mu.Unlock()
}

// RecordEdgeAt is RecordEdge with a caller-supplied timestamp.
func (c *Counter) RecordEdgeAt(lane int, beam Beam, now uint32) {
	if !c.Active(lane) {
		return
	}
	c.mu.Lock()
	c.recordEdge(lane, beam, now)
	c.mu.Unlock()
}

// CheckTimeouts runs the timeout check on every active lane.
func (c *Counter) CheckTimeouts() {
	c.mu.Lock()
	c.checkTimeouts(c.clock())
	c.mu.Unlock()
}

// CheckTimeoutsAt is CheckTimeouts with a caller-supplied timestamp.
func (c *Counter) CheckTimeoutsAt(now uint32) {
	c.mu.Lock()
	c.checkTimeouts(now)
	c.mu.Unlock()
}

// Snapshot drains the counters of every active lane and returns the
// aggregate for the period since the previous snapshot. Lane states are left
// running across the boundary.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	snap := c.snapshot(c.clock())
	c.mu.Unlock()
	return snap
}

// SnapshotAt is Snapshot with a caller-supplied timestamp.
func (c *Counter) SnapshotAt(now uint32) Snapshot {
	c.mu.Lock()
	snap := c.snapshot(now)
	c.mu.Unlock()
	return snap
}

// LaneStates returns a copy of each lane's state, indexed by lane.
func (c *Counter) LaneStates() [MaxLanes]State {
	var states [MaxLanes]State
	c.mu.Lock()
	for i := range c.lanes {
		states[i] = c.lanes[i].state
	}
	c.mu.Unlock()
	return states
}

// The helpers below run with c.mu held.

func (c *Counter) recordEdge(lane int, beam Beam, now uint32) {
	if beam == BeamA {
		c.lanes[lane].BeamA(now)
	} else {
		c.lanes[lane].BeamB(now)
	}
}

func (c *Counter) checkTimeouts(now uint32) {
	for i := range c.lanes {
		if c.laneMask&(1<<i) != 0 {
			c.lanes[i].CheckTimeout(now)
		}
	}
}

func (c *Counter) snapshot(now uint32) Snapshot {
	var in, out uint32
	snap := Snapshot{LaneMask: c.laneMask}

	for i := range c.lanes {
		if c.laneMask&(1<<i) == 0 {
			continue
		}
		lane := &c.lanes[i]
		lane.CheckTimeout(now)

		counts, stuck := lane.drain()
		if counts.In > MaxCount || counts.Out > MaxCount {
			snap.Clamped = true
		}
		in += clamp(counts.In)
		out += clamp(counts.Out)
		if stuck {
			snap.StuckMask |= 1 << i
		}
	}
	snap.PeriodMs = now - c.lastSnapshot
	c.lastSnapshot = now

	if in > MaxCount || out > MaxCount {
		snap.Clamped = true
	}
	snap.BeesIn = uint16(clamp(in))
	snap.BeesOut = uint16(clamp(out))
	return snap
}

func clamp(v uint32) uint32 {
	if v > MaxCount {
		return MaxCount
	}
	return v
}
