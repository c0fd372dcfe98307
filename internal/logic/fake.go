package logic

import "sync/atomic"

// ManualClock is a Clock that only moves when told to. Safe for concurrent use.
type ManualClock struct {
	now atomic.Uint32
}

// NewManualClock creates a clock reading start.
func NewManualClock(start uint32) *ManualClock {
	m := &ManualClock{}
	m.now.Store(start)
	return m
}

// Now returns the current reading. Pass m.Now wherever a Clock is needed.
func (m *ManualClock) Now() uint32 {
	return m.now.Load()
}

// Set moves the clock to v.
func (m *ManualClock) Set(v uint32) {
	m.now.Store(v)
}

// Advance moves the clock forward by d and returns the new reading.
func (m *ManualClock) Advance(d uint32) uint32 {
	return m.now.Add(d)
}
