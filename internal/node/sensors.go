package node

import "errors"

// ErrSensorUnavailable is returned by sensors that are not fitted.
var ErrSensorUnavailable = errors.New("sensor unavailable")

// Environment is a reading from the temperature/humidity/pressure sensor.
type Environment struct {
	TempCx100      int16
	HumidityX100   uint16
	PressureHPaX10 uint16
}

// Sensors reads the auxiliary hive sensors. Implementations own the hardware.
type Sensors interface {
	// Weight returns the hive weight in grams from the load cell.
	Weight() (int32, error)

	// Environment returns the enclosure climate.
	Environment() (Environment, error)

	// BatteryMV returns the battery voltage in millivolts.
	BatteryMV() (uint16, error)
}

// NoSensors is a counting-only node: every sensor reports unavailable.
type NoSensors struct{}

func (NoSensors) Weight() (int32, error)            { return 0, ErrSensorUnavailable }
func (NoSensors) Environment() (Environment, error) { return Environment{}, ErrSensorUnavailable }
func (NoSensors) BatteryMV() (uint16, error)        { return 0, ErrSensorUnavailable }

// StaticSensors returns fixed readings and optional errors. Used by tests
// and for bench setups without sensor hardware.
type StaticSensors struct {
	WeightG int32
	Env     Environment
	Battery uint16

	WeightErr  error
	EnvErr     error
	BatteryErr error
}

func (s *StaticSensors) Weight() (int32, error) {
	if s.WeightErr != nil {
		return 0, s.WeightErr
	}
	return s.WeightG, nil
}

func (s *StaticSensors) Environment() (Environment, error) {
	if s.EnvErr != nil {
		return Environment{}, s.EnvErr
	}
	return s.Env, nil
}

func (s *StaticSensors) BatteryMV() (uint16, error) {
	if s.BatteryErr != nil {
		return 0, s.BatteryErr
	}
	return s.Battery, nil
}
