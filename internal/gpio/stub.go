//go:build !linux

package gpio

import "errors"

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns an error on non-Linux platforms.
func NewRealSource(chipName string, pins PinMap, laneMask uint8, sink Sink) (*RealSource, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Close is not implemented on non-Linux platforms.
func (s *RealSource) Close() error {
	return nil
}
