package serialhw

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Porter defines the minimal interface needed for the bench rig's serial
// link. This abstraction enables unit testing without real serial hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// PortMode defines serial port configuration parameters.
type PortMode struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// DefaultPortMode returns the mode the bench rig MCU speaks.
func DefaultPortMode() *PortMode {
	return &PortMode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// PortOpener is a function type for opening serial ports, replaceable in
// tests.
type PortOpener func(path string, mode *PortMode) (Porter, error)

// OpenPort opens a real serial port at path.
func OpenPort(path string, mode *PortMode) (Porter, error) {
	if mode == nil {
		mode = DefaultPortMode()
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: mode.BaudRate,
		DataBits: mode.DataBits,
		Parity:   mode.Parity,
		StopBits: mode.StopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}
