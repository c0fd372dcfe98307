package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/waggle-node/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	HiveID        uint8      `json:"hive_id"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Link          LinkJSON   `json:"link"`
	Totals        TotalsJSON `json:"totals"`
	Lanes         []LaneJSON `json:"lanes"`
	LastCycle     *CycleJSON `json:"last_cycle,omitempty"`
	Config        ConfigJSON `json:"config"`
}

// LinkJSON reports serial link state.
type LinkJSON struct {
	Open bool   `json:"open"`
	Port string `json:"port"`
}

// TotalsJSON holds counts accumulated since startup.
type TotalsJSON struct {
	Cycles      int    `json:"cycles"`
	WriteErrors int    `json:"write_errors"`
	BeesIn      uint64 `json:"bees_in"`
	BeesOut     uint64 `json:"bees_out"`
}

// LaneJSON is the state of one active lane.
type LaneJSON struct {
	Lane  int    `json:"lane"`
	State string `json:"state"`
}

// CycleJSON is the JSON representation of the last cycle.
type CycleJSON struct {
	Timestamp string `json:"timestamp"`
	Sequence  uint16 `json:"sequence"`
	Flags     uint8  `json:"flags"`
	BeesIn    uint16 `json:"bees_in"`
	BeesOut   uint16 `json:"bees_out"`
	PeriodMs  uint32 `json:"period_ms"`
	StuckMask uint8  `json:"stuck_mask"`
	WireBytes int    `json:"wire_bytes"`
	Error     string `json:"error,omitempty"`
}

// ConfigJSON is the JSON representation of node config.
type ConfigJSON struct {
	LaneMask          uint8  `json:"lane_mask"`
	Extended          bool   `json:"extended"`
	CollectIntervalMs int64  `json:"collect_interval_ms"`
	CheckIntervalMs   int64  `json:"check_interval_ms"`
	DebounceMs        uint32 `json:"debounce_ms"`
	MinTransitMs      uint32 `json:"min_transit_ms"`
	MaxTransitMs      uint32 `json:"max_transit_ms"`
	RefractoryMs      uint32 `json:"refractory_ms"`
	StuckMs           uint32 `json:"stuck_ms"`
	HTTPAddr          string `json:"http_addr"`
}

// ActiveLanes lists the lanes enabled by the lane mask with their state.
func ActiveLanes(snap Snapshot) []LaneJSON {
	lanes := []LaneJSON{}
	for i := 0; i < logic.MaxLanes; i++ {
		if snap.Config.LaneMask&(1<<i) == 0 {
			continue
		}
		lanes = append(lanes, LaneJSON{Lane: i, State: snap.Lanes[i].String()})
	}
	return lanes
}

func buildInner(snap Snapshot) StatusInner {
	cfg := snap.Config
	inner := StatusInner{
		HiveID:        cfg.HiveID,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Link:          LinkJSON{Open: snap.LinkOpen, Port: cfg.SerialPort},
		Totals: TotalsJSON{
			Cycles:      snap.Cycles,
			WriteErrors: snap.WriteErrors,
			BeesIn:      snap.TotalIn,
			BeesOut:     snap.TotalOut,
		},
		Lanes: ActiveLanes(snap),
		Config: ConfigJSON{
			LaneMask:          cfg.LaneMask,
			Extended:          cfg.Extended,
			CollectIntervalMs: cfg.CollectIntervalMs,
			CheckIntervalMs:   cfg.CheckIntervalMs,
			DebounceMs:        cfg.Timing.DebounceMs,
			MinTransitMs:      cfg.Timing.MinTransitMs,
			MaxTransitMs:      cfg.Timing.MaxTransitMs,
			RefractoryMs:      cfg.Timing.RefractoryMs,
			StuckMs:           cfg.Timing.StuckMs,
			HTTPAddr:          cfg.HTTPAddr,
		},
	}

	if c := snap.LastCycle; c != nil {
		inner.LastCycle = &CycleJSON{
			Timestamp: c.At.UTC().Format(time.RFC3339),
			Sequence:  c.Sequence,
			Flags:     uint8(c.Flags),
			BeesIn:    c.BeesIn,
			BeesOut:   c.BeesOut,
			PeriodMs:  c.PeriodMs,
			StuckMask: c.StuckMask,
			WireBytes: c.WireLen,
			Error:     c.WriteErr,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
