// Package node runs the periodic collection cycle of a sensor node: drain
// the lane counters, read the hive sensors, build the payload and write the
// framed bytes to the link.
package node

import (
	"fmt"
	"io"

	"github.com/sweeney/waggle-node/internal/frame"
	"github.com/sweeney/waggle-node/internal/logic"
)

// DefaultLowBatteryMV is the voltage below which FlagLowBattery is set.
const DefaultLowBatteryMV = 3300

// Config holds the per-node settings used to build payloads.
type Config struct {
	HiveID uint8
	// Extended selects the 48-byte payload carrying traffic counts.
	Extended     bool
	LowBatteryMV uint16
}

// Snapshotter drains accumulated lane counts.
type Snapshotter interface {
	Snapshot() logic.Snapshot
}

// Report describes one completed cycle.
type Report struct {
	Sequence uint16
	Flags    frame.Flags
	Snapshot logic.Snapshot
	Payload  []byte
	// Wire is the stuffed payload plus delimiter, as written to the link.
	Wire []byte
}

// Cycle is the state carried from one collection cycle to the next.
// Not safe for concurrent use.
type Cycle struct {
	cfg       Config
	counter   Snapshotter
	sensors   Sensors
	link      io.Writer
	sequence  uint16
	firstBoot bool
	wire      []byte
}

// NewCycle creates a cycle that starts at sequence 0 and reports first boot
// on its first run.
func NewCycle(cfg Config, counter Snapshotter, sensors Sensors, link io.Writer) *Cycle {
	if cfg.LowBatteryMV == 0 {
		cfg.LowBatteryMV = DefaultLowBatteryMV
	}
	return &Cycle{
		cfg:       cfg,
		counter:   counter,
		sensors:   sensors,
		link:      link,
		firstBoot: true,
		wire:      make([]byte, 0, frame.MaxEncodedLen(frame.ExtendedSize)+1),
	}
}

// Sequence returns the sequence number the next cycle will use.
func (c *Cycle) Sequence() uint16 {
	return c.sequence
}

// Run performs one collection cycle. The sequence number advances even if
// the write fails; retrying is the link's job.
func (c *Cycle) Run() (Report, error) {
	snap := c.counter.Snapshot()
	fields := c.readFields()

	if c.firstBoot {
		fields.Flags |= frame.FlagFirstBoot
		c.firstBoot = false
	}
	if snap.Clamped {
		fields.Flags |= frame.FlagClamped
	}
	if snap.StuckMask != 0 {
		fields.Flags |= frame.FlagCounterStuck
	}

	var payload []byte
	if c.cfg.Extended {
		b := frame.BuildExtended(fields, frame.Traffic{
			BeesIn:    snap.BeesIn,
			BeesOut:   snap.BeesOut,
			PeriodMs:  snap.PeriodMs,
			LaneMask:  snap.LaneMask,
			StuckMask: snap.StuckMask,
		})
		payload = b[:]
	} else {
		b := frame.BuildBasic(fields)
		payload = b[:]
	}

	c.wire = frame.AppendFrame(c.wire[:0], payload)
	report := Report{
		Sequence: c.sequence,
		Flags:    fields.Flags,
		Snapshot: snap,
		Payload:  payload,
		Wire:     append([]byte(nil), c.wire...),
	}
	c.sequence++

	if _, err := c.link.Write(c.wire); err != nil {
		return report, fmt.Errorf("write frame seq=%d: %w", report.Sequence, err)
	}
	return report, nil
}

func (c *Cycle) readFields() frame.Fields {
	f := frame.Fields{
		HiveID:   c.cfg.HiveID,
		Sequence: c.sequence,
	}

	if w, err := c.sensors.Weight(); err != nil {
		f.Flags |= frame.FlagPrimarySensorError
	} else {
		f.WeightG = w
	}

	if env, err := c.sensors.Environment(); err != nil {
		f.Flags |= frame.FlagSecondarySensorError
	} else {
		f.TempCx100 = env.TempCx100
		f.HumidityX100 = env.HumidityX100
		f.PressureHPaX10 = env.PressureHPaX10
	}

	// An unreadable or unmeasured battery reads 0 mV and is never low.
	if mv, err := c.sensors.BatteryMV(); err == nil {
		f.BatteryMV = mv
		if mv > 0 && mv < c.cfg.LowBatteryMV {
			f.Flags |= frame.FlagLowBattery
		}
	}
	return f
}
