// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/waggle-node/internal/bridge"
)

// SchemaVersion is carried in every reading message.
const SchemaVersion = 1

// TopicSystem is the MQTT topic for bridge lifecycle events.
const TopicSystem = "waggle/bridge/system"

// Publisher publishes readings to MQTT.
type Publisher interface {
	// Publish sends a hive reading to the broker on its hive topic.
	// Returns error if publishing fails (should not crash the process).
	Publish(r bridge.Reading) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason    string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	Frames    *FrameCounts
	Retained  bool // Whether the message should be retained by the broker
}

// FrameCounts summarises what the bridge has received since startup.
type FrameCounts struct {
	Received  int `json:"received"`
	Published int `json:"published"`
	Rejected  int `json:"rejected"`
}

// ReadingPayload is the JSON message for one hive reading.
type ReadingPayload struct {
	SchemaVersion  int    `json:"schema_version"`
	HiveID         uint8  `json:"hive_id"`
	MsgType        uint8  `json:"msg_type"`
	Sequence       uint16 `json:"sequence"`
	WeightG        int32  `json:"weight_g"`
	TempCx100      int16  `json:"temp_c_x100"`
	HumidityX100   uint16 `json:"humidity_x100"`
	PressureHPaX10 uint16 `json:"pressure_hpa_x10"`
	BatteryMV      uint16 `json:"battery_mv"`
	Flags          uint8  `json:"flags"`
	*TrafficPayload
	ObservedAt string `json:"observed_at"`
}

// TrafficPayload holds the bee counting fields of extended readings.
type TrafficPayload struct {
	BeesIn    uint16 `json:"bees_in"`
	BeesOut   uint16 `json:"bees_out"`
	PeriodMs  uint32 `json:"period_ms"`
	LaneMask  uint8  `json:"lane_mask"`
	StuckMask uint8  `json:"stuck_mask"`
}

// FormatPayload creates the JSON message for a reading.
func FormatPayload(r bridge.Reading) ([]byte, error) {
	p := r.Payload
	msg := ReadingPayload{
		SchemaVersion:  SchemaVersion,
		HiveID:         p.HiveID,
		MsgType:        p.MsgType,
		Sequence:       p.Sequence,
		WeightG:        p.WeightG,
		TempCx100:      p.TempCx100,
		HumidityX100:   p.HumidityX100,
		PressureHPaX10: p.PressureHPaX10,
		BatteryMV:      p.BatteryMV,
		Flags:          uint8(p.Flags),
		ObservedAt:     r.ObservedAt.UTC().Format(time.RFC3339),
	}
	if p.Extended() {
		msg.TrafficPayload = &TrafficPayload{
			BeesIn:    p.Traffic.BeesIn,
			BeesOut:   p.Traffic.BeesOut,
			PeriodMs:  p.Traffic.PeriodMs,
			LaneMask:  p.Traffic.LaneMask,
			StuckMask: p.Traffic.StuckMask,
		}
	}
	return json.Marshal(msg)
}

// SystemPayload represents the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string       `json:"timestamp"`
	Event     string       `json:"event"`
	Reason    string       `json:"reason,omitempty"`
	Frames    *FrameCounts `json:"frames,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Frames:    event.Frames,
		},
	}
	return json.Marshal(payload)
}
