package gpio

import (
	"errors"

	"github.com/sweeney/waggle-node/internal/logic"
)

// ErrClosed is returned when replaying into a closed FakeSource.
var ErrClosed = errors.New("gpio: source closed")

// ScriptedEdge is one edge replayed by FakeSource.
type ScriptedEdge struct {
	Edge
	At uint32
}

// FakeSource is a test double that replays scripted edges into a Sink.
// Before each edge it moves clock to the edge's At, so a sink reading the
// same clock stamps the edge with the scripted time.
type FakeSource struct {
	// Edges contains the scripted edges, in delivery order.
	Edges []ScriptedEdge

	// Closed tracks if Close was called
	Closed bool

	sink  Sink
	clock *logic.ManualClock
	index int
}

// NewFakeSource creates a FakeSource delivering to sink and driving clock.
func NewFakeSource(sink Sink, clock *logic.ManualClock, edges []ScriptedEdge) *FakeSource {
	return &FakeSource{Edges: edges, sink: sink, clock: clock}
}

// Step delivers the next scripted edge. It reports false once the script is
// exhausted.
func (f *FakeSource) Step() (bool, error) {
	if f.Closed {
		return false, ErrClosed
	}
	if f.index >= len(f.Edges) {
		return false, nil
	}
	e := f.Edges[f.index]
	f.index++
	f.clock.Set(e.At)
	f.sink.RecordEdge(e.Lane, e.Beam)
	return true, nil
}

// ReplayUntil delivers every scripted edge with At <= now, in order, then
// leaves the clock at now.
func (f *FakeSource) ReplayUntil(now uint32) (int, error) {
	if f.Closed {
		return 0, ErrClosed
	}
	n := 0
	for f.index < len(f.Edges) && f.Edges[f.index].At <= now {
		if _, err := f.Step(); err != nil {
			return n, err
		}
		n++
	}
	f.clock.Set(now)
	return n, nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds the script.
func (f *FakeSource) Reset() {
	f.index = 0
	f.Closed = false
}
