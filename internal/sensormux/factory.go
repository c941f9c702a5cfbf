package sensormux

import (
	"go.bug.st/serial"
)

// NewSerialMux creates a Mux backed by a real bridge port at the given path.
// 115200/8N1 matches the pod radio bridge firmware.
func NewSerialMux(path string) (*Mux[serial.Port], error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewMux[serial.Port](port), nil
}
