//go:build linux

package gpio

import (
	"fmt"
	"log"
	"sort"

	"github.com/warthog618/go-gpiocdev"
)

// RealSource watches beam inputs on actual hardware using the Linux GPIO
// character device. Beams idle high through the pull-up; a break pulls the
// line low, so only falling edges are requested.
type RealSource struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// NewRealSource requests every beam pin of the lanes in laneMask and starts
// delivering falling edges to sink.
func NewRealSource(chipName string, pins PinMap, laneMask uint8, sink Sink) (*RealSource, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	s := &RealSource{chip: chip}
	edges := pins.lookup(laneMask)

	offsets := make([]int, 0, len(edges))
	for pin := range edges {
		offsets = append(offsets, pin)
	}
	sort.Ints(offsets)

	for _, pin := range offsets {
		edge := edges[pin]
		handler := func(evt gpiocdev.LineEvent) {
			if evt.Type != gpiocdev.LineEventFallingEdge {
				return
			}
			sink.RecordEdge(edge.Lane, edge.Beam)
		}

		line, err := chip.RequestLine(pin,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithEventHandler(handler))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("request lane %d beam %s pin %d: %w", edge.Lane, edge.Beam, pin, err)
		}
		s.lines = append(s.lines, line)
		log.Printf("gpio: lane %d beam %s on pin %d", edge.Lane, edge.Beam, pin)
	}

	return s, nil
}

// Close stops edge detection and releases GPIO resources.
// Lines are left as plain inputs with pull-up so the emitters see the same
// bias they had while counting.
func (s *RealSource) Close() error {
	var errs []error

	for _, line := range s.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", line.Offset(), err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", line.Offset(), err))
		}
	}
	s.lines = nil

	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		s.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
