package logic

import "math"

// Detector runs the direction-detection state machine for a single lane.
// Beam A is the outer beam: A then B is a bee entering, B then A a bee leaving.
// Not safe for concurrent use; Counter serialises access.
type Detector struct {
	timing       Timing
	state        State
	stateEntered uint32
	lastEdgeA    uint32
	lastEdgeB    uint32
	counts       Counts
	stuck        bool
}

// NewDetector creates an idle lane detector with zero counters.
func NewDetector(timing Timing) *Detector {
	return &Detector{timing: timing}
}

// BeamA handles beam A transitioning to broken at now.
func (d *Detector) BeamA(now uint32) {
	if now-d.lastEdgeA < d.timing.DebounceMs {
		return
	}
	d.lastEdgeA = now

	switch d.state {
	case StateIdle:
		d.enter(StateABroken, now)
	case StateBBroken:
		if d.validTransit(now) {
			d.counts.Out = saturatingInc(d.counts.Out)
		}
		d.enter(StateCooldown, now)
	}
	// A_BROKEN: duplicate edge. COOLDOWN: refractory.
}

// BeamB handles beam B transitioning to broken at now.
func (d *Detector) BeamB(now uint32) {
	if now-d.lastEdgeB < d.timing.DebounceMs {
		return
	}
	d.lastEdgeB = now

	switch d.state {
	case StateIdle:
		d.enter(StateBBroken, now)
	case StateABroken:
		if d.validTransit(now) {
			d.counts.In = saturatingInc(d.counts.In)
		}
		d.enter(StateCooldown, now)
	}
}

// CheckTimeout ages out incomplete transits, latches the stuck flag and ends
// the cooldown. It must be called at least every StuckMs.
func (d *Detector) CheckTimeout(now uint32) {
	elapsed := now - d.stateEntered

	switch d.state {
	case StateABroken, StateBBroken:
		if elapsed > d.timing.MaxTransitMs {
			d.enter(StateIdle, now)
		}
		// Latched independently of the revert above.
		if elapsed > d.timing.StuckMs {
			d.stuck = true
		}
	case StateCooldown:
		if elapsed >= d.timing.RefractoryMs {
			d.enter(StateIdle, now)
		}
	}
}

// State returns the current lane state.
func (d *Detector) State() State {
	return d.state
}

// Counts returns the accumulated counts without resetting them.
func (d *Detector) Counts() Counts {
	return d.counts
}

// Stuck reports whether the stuck flag is latched.
func (d *Detector) Stuck() bool {
	return d.stuck
}

// drain returns and zeroes the counters and the stuck flag.
func (d *Detector) drain() (Counts, bool) {
	c, s := d.counts, d.stuck
	d.counts = Counts{}
	d.stuck = false
	return c, s
}

func (d *Detector) enter(s State, now uint32) {
	d.state = s
	d.stateEntered = now
}

func (d *Detector) validTransit(now uint32) bool {
	transit := now - d.stateEntered
	return transit >= d.timing.MinTransitMs && transit <= d.timing.MaxTransitMs
}

func saturatingInc(v uint32) uint32 {
	if v == math.MaxUint32 {
		return v
	}
	return v + 1
}
