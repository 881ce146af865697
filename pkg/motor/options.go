package motor

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate matches the stock firmware on the motor controller board
const DefaultBaudRate = 9600

// PortOptions describes the serial link to the motor controller. Zero
// values mean the controller's stock 8N1 framing.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parities = map[string]serial.Parity{
	"":     serial.NoParity,
	"N":    serial.NoParity,
	"NONE": serial.NoParity,
	"E":    serial.EvenParity,
	"EVEN": serial.EvenParity,
	"O":    serial.OddParity,
	"ODD":  serial.OddParity,
}

// Mode checks the options and builds the mode the port is opened with.
func (o PortOptions) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultBaudRate
	}

	switch {
	case o.DataBits == 0:
		mode.DataBits = 8
	case o.DataBits < 5 || o.DataBits > 8:
		return nil, fmt.Errorf("motor: %d data bits, want 5 to 8", o.DataBits)
	}

	switch o.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("motor: %d stop bits, want 1 or 2", o.StopBits)
	}

	parity, ok := parities[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return nil, fmt.Errorf("motor: parity %q, want N, E or O", o.Parity)
	}
	mode.Parity = parity

	return mode, nil
}
