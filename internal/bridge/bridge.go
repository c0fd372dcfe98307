// Package bridge turns wire frames received from sensor nodes into readings
// ready for publishing.
package bridge

import (
	"fmt"
	"time"

	"github.com/sweeney/waggle-node/internal/frame"
)

// Reading is a verified payload with the time the collector received it.
type Reading struct {
	Payload    frame.Payload
	ObservedAt time.Time
}

// Topic returns the MQTT topic for the reading's hive.
func (r Reading) Topic() string {
	return fmt.Sprintf("waggle/%d/sensors", r.Payload.HiveID)
}

// Processor decodes and validates frames.
type Processor struct {
	now func() time.Time
}

// NewProcessor creates a processor stamping readings with now.
func NewProcessor(now func() time.Time) *Processor {
	if now == nil {
		now = time.Now
	}
	return &Processor{now: now}
}

// Process decodes one stuffed frame (without delimiter) and verifies its
// payload.
func (p *Processor) Process(raw []byte) (Reading, error) {
	decoded, err := frame.Decode(raw)
	if err != nil {
		return Reading{}, fmt.Errorf("decode frame: %w", err)
	}

	payload, err := frame.Parse(decoded)
	if err != nil {
		return Reading{}, fmt.Errorf("parse payload: %w", err)
	}

	return Reading{
		Payload:    payload,
		ObservedAt: p.now().UTC(),
	}, nil
}
