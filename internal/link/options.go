// Package link carries wire frames over a serial port between a sensor node
// and the collector.
package link

import (
	"flag"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the collector's USB serial bridge.
const DefaultBaudRate = 115200

// Settings are the serial framing parameters. Zero fields fall back to
// 115200 8N1.
type Settings struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   Parity
}

// RegisterFlags binds the settings to -baud, -data-bits, -stop-bits and
// -parity on fs.
func (s *Settings) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&s.BaudRate, "baud", DefaultBaudRate, "Serial baud rate")
	fs.IntVar(&s.DataBits, "data-bits", 8, "Serial data bits (5-8)")
	fs.IntVar(&s.StopBits, "stop-bits", 1, "Serial stop bits (1 or 2)")
	fs.Var(&s.Parity, "parity", "Serial parity (N, E or O)")
}

// Mode checks the settings and returns the port mode.
func (s Settings) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
		Parity:   serial.Parity(s.Parity),
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("data bits %d out of range 5-8", mode.DataBits)
	}
	switch s.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("stop bits %d: want 1 or 2", s.StopBits)
	}
	return mode, nil
}

// Parity is a flag.Value over the parities the node's UART supports. The
// zero value is no parity.
type Parity serial.Parity

var parityNames = map[Parity]string{
	Parity(serial.NoParity):   "N",
	Parity(serial.EvenParity): "E",
	Parity(serial.OddParity):  "O",
}

func (p Parity) String() string {
	if name, ok := parityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Parity(%d)", int(p))
}

// Set accepts the single-letter name, in either case.
func (p *Parity) Set(v string) error {
	for parity, name := range parityNames {
		if strings.EqualFold(v, name) {
			*p = parity
			return nil
		}
	}
	return fmt.Errorf("parity %q: want N, E or O", v)
}

// Open opens the serial port at path.
func Open(path string, s Settings) (serial.Port, error) {
	mode, err := s.Mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}
