// Package gpio delivers beam-break edges from the tunnel to the lane counter.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/waggle-node/internal/logic"

// Sink receives beam-break edges and stamps them with its own clock.
// *logic.Counter implements it.
type Sink interface {
	RecordEdge(lane int, beam logic.Beam)
}

// Source watches beam inputs and feeds edges into a Sink until closed.
type Source interface {
	// Close stops edge delivery and releases GPIO resources.
	Close() error
}

// PinMap holds the BCM pin numbers of each lane's beams.
type PinMap struct {
	A [logic.MaxLanes]int // outer beams
	B [logic.MaxLanes]int // inner beams
}

// DefaultPins is the tunnel wiring on the Pi header.
var DefaultPins = PinMap{
	A: [logic.MaxLanes]int{17, 27, 22, 23},
	B: [logic.MaxLanes]int{5, 6, 13, 19},
}

// Edge identifies one beam input.
type Edge struct {
	Lane int
	Beam logic.Beam
}

// lookup maps each active pin to its lane and beam.
func (p PinMap) lookup(laneMask uint8) map[int]Edge {
	m := make(map[int]Edge)
	for lane := 0; lane < logic.MaxLanes; lane++ {
		if laneMask&(1<<lane) == 0 {
			continue
		}
		m[p.A[lane]] = Edge{Lane: lane, Beam: logic.BeamA}
		m[p.B[lane]] = Edge{Lane: lane, Beam: logic.BeamB}
	}
	return m
}
