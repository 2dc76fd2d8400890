package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultReadTimeout bounds a single Read so callers can poll for
// cancellation.
const DefaultReadTimeout = 100 * time.Millisecond

// Port wraps a serial port attached to a K-Line interface.
type Port struct {
	port     serial.Port
	portName string
	baudRate int
}

// Open opens a serial port with the specified baud rate, 8N1.
func Open(portName string, baudRate int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(DefaultReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Port{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Close closes the serial port.
func (p *Port) Close() error {
	if p.port != nil {
		return p.port.Close()
	}
	return nil
}

// Read reads data from the serial port. It returns 0, nil when the read
// timeout expires without data.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// SetDTR sets the DTR signal.
func (p *Port) SetDTR(value bool) error {
	return p.port.SetDTR(value)
}

// SetRTS sets the RTS signal.
func (p *Port) SetRTS(value bool) error {
	return p.port.SetRTS(value)
}

// PowerAdapter drives the modem lines the way passive KKL adapters expect:
// DTR high supplies the level shifter, RTS low keeps the transmitter off
// the bus.
func (p *Port) PowerAdapter() error {
	if err := p.SetDTR(true); err != nil {
		return fmt.Errorf("set DTR: %w", err)
	}
	if err := p.SetRTS(false); err != nil {
		return fmt.Errorf("set RTS: %w", err)
	}
	time.Sleep(50 * time.Millisecond)
	return p.Flush()
}

// PortName returns the port name.
func (p *Port) PortName() string {
	return p.portName
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
