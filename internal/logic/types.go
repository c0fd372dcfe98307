// Package logic contains the pure bee-counting logic for the tunnel lanes.
// This package has NO external dependencies (no GPIO, serial, OS, or time.Sleep).
// Time is always injected as a monotonic millisecond counter that may wrap.
package logic

// MaxLanes is the number of counting lanes a tunnel can carry.
const MaxLanes = 4

// MaxCount is the ceiling applied to reported counts.
const MaxCount = 65535

// State represents the direction-detection state of a lane.
type State uint8

const (
	StateIdle State = iota
	StateABroken
	StateBBroken
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateABroken:
		return "A_BROKEN"
	case StateBBroken:
		return "B_BROKEN"
	case StateCooldown:
		return "COOLDOWN"
	}
	return "UNKNOWN"
}

// Beam identifies one of the two beams of a lane.
type Beam uint8

const (
	BeamA Beam = iota // outer
	BeamB             // inner
)

func (b Beam) String() string {
	if b == BeamA {
		return "A"
	}
	return "B"
}

// Timing holds the lane timing windows in milliseconds.
type Timing struct {
	// Minimum spacing between accepted edges on the same beam
	DebounceMs uint32
	// Inclusive bounds on the A->B or B->A transit time for a count
	MinTransitMs uint32
	MaxTransitMs uint32
	// Quiet period after a completed transit
	RefractoryMs uint32
	// A lane waiting longer than this for its second beam is flagged stuck
	StuckMs uint32
}

// DefaultTiming returns the timing used by the 10-15mm beam spacing tunnel.
func DefaultTiming() Timing {
	return Timing{
		DebounceMs:   3,
		MinTransitMs: 5,
		MaxTransitMs: 200,
		RefractoryMs: 30,
		StuckMs:      2000,
	}
}

// Snapshot is the aggregate of all active lanes since the previous snapshot.
type Snapshot struct {
	BeesIn    uint16
	BeesOut   uint16
	PeriodMs  uint32
	LaneMask  uint8
	StuckMask uint8
	// Clamped is set when any counter saturated at MaxCount
	Clamped bool
}

// Counts holds raw per-lane accumulators.
type Counts struct {
	In  uint32
	Out uint32
}
