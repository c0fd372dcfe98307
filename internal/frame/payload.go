package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Message types.
const (
	MsgTypeSensor   = 0x01 // basic 32-byte payload
	MsgTypeBeeCount = 0x02 // extended 48-byte payload with traffic counts
)

// Payload sizes.
const (
	BasicSize    = 32
	ExtendedSize = 48
)

// Field offsets (little-endian, no padding).
const (
	offHiveID    = 0
	offMsgType   = 1
	offSequence  = 2
	offWeight    = 4
	offTemp      = 8
	offHumidity  = 10
	offPressure  = 12
	offBattery   = 14
	offFlags     = 16
	offCRC       = 17
	offBeesIn    = 18
	offBeesOut   = 20
	offPeriod    = 22
	offLaneMask  = 26
	offStuckMask = 27
)

// ChecksumLen is the number of leading bytes covered by the CRC.
const ChecksumLen = offCRC

// Flags is the payload status bitfield. Bits 4 and 7 are reserved.
type Flags uint8

const (
	FlagFirstBoot            Flags = 1 << 0
	FlagClamped              Flags = 1 << 1 // a traffic counter saturated
	FlagCounterStuck         Flags = 1 << 2
	FlagLowBattery           Flags = 1 << 3
	FlagPrimarySensorError   Flags = 1 << 5 // load cell
	FlagSecondarySensorError Flags = 1 << 6 // environment sensor
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool {
	return f&f2 == f2
}

// Fields are the sensor fields common to both payload variants.
type Fields struct {
	HiveID         uint8
	Sequence       uint16
	WeightG        int32
	TempCx100      int16
	HumidityX100   uint16
	PressureHPaX10 uint16
	BatteryMV      uint16
	Flags          Flags
}

// Traffic holds the bee counting fields of the extended payload.
type Traffic struct {
	BeesIn    uint16
	BeesOut   uint16
	PeriodMs  uint32
	LaneMask  uint8
	StuckMask uint8
}

// Payload is a parsed payload of either variant.
type Payload struct {
	Fields
	MsgType uint8
	CRC     uint8
	// Traffic is only meaningful when MsgType is MsgTypeBeeCount.
	Traffic Traffic
}

// Extended reports whether the payload carries traffic counts.
func (p Payload) Extended() bool {
	return p.MsgType == MsgTypeBeeCount
}

// BuildBasic returns the 32-byte sensor payload for f.
func BuildBasic(f Fields) [BasicSize]byte {
	var b [BasicSize]byte
	putFields(b[:], MsgTypeSensor, f)
	b[offCRC] = CRC8(b[:ChecksumLen])
	return b
}

// BuildExtended returns the 48-byte payload for f and t. The CRC covers
// only the common prefix, as in the basic payload.
func BuildExtended(f Fields, t Traffic) [ExtendedSize]byte {
	var b [ExtendedSize]byte
	putFields(b[:], MsgTypeBeeCount, f)
	b[offCRC] = CRC8(b[:ChecksumLen])
	binary.LittleEndian.PutUint16(b[offBeesIn:], t.BeesIn)
	binary.LittleEndian.PutUint16(b[offBeesOut:], t.BeesOut)
	binary.LittleEndian.PutUint32(b[offPeriod:], t.PeriodMs)
	b[offLaneMask] = t.LaneMask
	b[offStuckMask] = t.StuckMask
	return b
}

func putFields(b []byte, msgType uint8, f Fields) {
	b[offHiveID] = f.HiveID
	b[offMsgType] = msgType
	binary.LittleEndian.PutUint16(b[offSequence:], f.Sequence)
	binary.LittleEndian.PutUint32(b[offWeight:], uint32(f.WeightG))
	binary.LittleEndian.PutUint16(b[offTemp:], uint16(f.TempCx100))
	binary.LittleEndian.PutUint16(b[offHumidity:], f.HumidityX100)
	binary.LittleEndian.PutUint16(b[offPressure:], f.PressureHPaX10)
	binary.LittleEndian.PutUint16(b[offBattery:], f.BatteryMV)
	b[offFlags] = uint8(f.Flags)
}

var (
	// ErrPayloadSize is returned for payloads that are neither 32 nor 48 bytes.
	ErrPayloadSize = errors.New("frame: unexpected payload size")
	// ErrMsgType is returned when msg_type does not match the payload size.
	ErrMsgType = errors.New("frame: unknown message type")
)

// ChecksumError reports a CRC mismatch.
type ChecksumError struct {
	Want byte // computed over the payload
	Got  byte // carried in the payload
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame: crc mismatch: expected 0x%02X, got 0x%02X", e.Want, e.Got)
}

// Parse validates and decodes a payload of either variant.
func Parse(b []byte) (Payload, error) {
	var wantType uint8
	switch len(b) {
	case BasicSize:
		wantType = MsgTypeSensor
	case ExtendedSize:
		wantType = MsgTypeBeeCount
	default:
		return Payload{}, fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(b))
	}

	if crc := CRC8(b[:ChecksumLen]); crc != b[offCRC] {
		return Payload{}, &ChecksumError{Want: crc, Got: b[offCRC]}
	}
	if b[offMsgType] != wantType {
		return Payload{}, fmt.Errorf("%w: 0x%02X in %d-byte payload", ErrMsgType, b[offMsgType], len(b))
	}

	p := Payload{
		Fields: Fields{
			HiveID:         b[offHiveID],
			Sequence:       binary.LittleEndian.Uint16(b[offSequence:]),
			WeightG:        int32(binary.LittleEndian.Uint32(b[offWeight:])),
			TempCx100:      int16(binary.LittleEndian.Uint16(b[offTemp:])),
			HumidityX100:   binary.LittleEndian.Uint16(b[offHumidity:]),
			PressureHPaX10: binary.LittleEndian.Uint16(b[offPressure:]),
			BatteryMV:      binary.LittleEndian.Uint16(b[offBattery:]),
			Flags:          Flags(b[offFlags]),
		},
		MsgType: b[offMsgType],
		CRC:     b[offCRC],
	}
	if p.Extended() {
		p.Traffic = Traffic{
			BeesIn:    binary.LittleEndian.Uint16(b[offBeesIn:]),
			BeesOut:   binary.LittleEndian.Uint16(b[offBeesOut:]),
			PeriodMs:  binary.LittleEndian.Uint32(b[offPeriod:]),
			LaneMask:  b[offLaneMask],
			StuckMask: b[offStuckMask],
		}
	}
	return p, nil
}
