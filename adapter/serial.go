package adapter

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialOptions configures serial and RFCOMM adapters
type SerialOptions struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// DefaultSerialOptions returns the defaults used when nothing is configured
func DefaultSerialOptions() SerialOptions {
	return SerialOptions{
		BaudRate:    9600,
		ReadTimeout: 3 * time.Second,
	}
}

// portOpener is replaced in tests
var portOpener = func(name string, mode *serial.Mode) (serial.Port, error) {
	return serial.Open(name, mode)
}

// SerialAdapter talks to a printer over a serial port, including
// Bluetooth-classic RFCOMM devices such as /dev/rfcomm0
type SerialAdapter struct {
	portName string
	opts     SerialOptions
	port     serial.Port
	isOpen   bool
	mu       sync.Mutex
}

// NewSerialAdapter creates an unopened adapter for portName
func NewSerialAdapter(portName string, opts SerialOptions) *SerialAdapter {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultSerialOptions().BaudRate
	}
	return &SerialAdapter{portName: portName, opts: opts}
}

// Open opens the port in 8N1 mode
func (a *SerialAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return ErrAlreadyOpen
	}

	mode := &serial.Mode{
		BaudRate: a.opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := portOpener(a.portName, mode)
	if err != nil {
		return connErr(KindSerial, a.portName, "open", fmt.Errorf("failed to open port %s: %w", a.portName, err))
	}

	if a.opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(a.opts.ReadTimeout); err != nil {
			port.Close()
			return connErr(KindSerial, a.portName, "open", err)
		}
	}

	a.port = port
	a.isOpen = true
	return nil
}

// Write sends data to the printer and waits for it to leave the output buffer
func (a *SerialAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, connErr(KindSerial, a.portName, "write", ErrNotOpen)
	}

	written := 0
	for written < len(data) {
		n, err := a.port.Write(data[written:])
		written += n
		if err != nil {
			return written, connErr(KindSerial, a.portName, "write", fmt.Errorf("write failed: %w", err))
		}
		if n == 0 {
			return written, connErr(KindSerial, a.portName, "write", ErrShortWrite)
		}
	}

	if err := a.port.Drain(); err != nil {
		return written, connErr(KindSerial, a.portName, "write", fmt.Errorf("drain: %w", err))
	}

	return written, nil
}

// Read reads data from the printer. A read timeout yields ErrReadTimeout.
func (a *SerialAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, connErr(KindSerial, a.portName, "read", ErrNotOpen)
	}

	n, err := a.port.Read(buf)
	if err != nil {
		return n, err
	}
	// go.bug.st/serial reports a timeout as a zero-length read
	if n == 0 && len(buf) > 0 {
		return 0, ErrReadTimeout
	}
	return n, nil
}

// Close closes the port
func (a *SerialAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return nil
	}

	a.isOpen = false
	err := a.port.Close()
	a.port = nil
	return err
}

// IsOpen returns whether the port is open
func (a *SerialAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}
