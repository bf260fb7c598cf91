package adapter

import (
	"errors"
	"fmt"
	"strings"
)

// Adapter defines the interface for printer communication adapters
type Adapter interface {
	// Open opens the connection to the printer
	Open() error

	// Write sends data to the printer. A short write is reported as an error.
	Write(data []byte) (int, error)

	// Read reads data from the printer
	Read(buf []byte) (int, error)

	// Close closes the connection to the printer. Calling it more than once is a no-op.
	Close() error

	// IsOpen returns whether the connection is open
	IsOpen() bool
}

// Kind identifies a transport variant
type Kind int

const (
	KindTCP Kind = iota
	KindBLE
	KindUSB
	KindSerial
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindBLE:
		return "ble"
	case KindUSB:
		return "usb"
	case KindSerial:
		return "serial"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultConnectionMessage is reported when a transport fails without any error text.
const DefaultConnectionMessage = "connection failed"

var (
	ErrNotOpen     = errors.New("device not open")
	ErrAlreadyOpen = errors.New("device already open")
	ErrShortWrite  = errors.New("short write")
)

// ConnectionError is returned by adapters when the link to the printer fails
type ConnectionError struct {
	Kind    Kind
	Address string
	Op      string // "open", "write", "read" or "info"
	Err     error
}

func (e *ConnectionError) Error() string {
	return e.Message()
}

// Message returns the underlying error text, or DefaultConnectionMessage when there is none.
func (e *ConnectionError) Message() string {
	if e.Err == nil {
		return DefaultConnectionMessage
	}
	msg := strings.TrimSpace(e.Err.Error())
	if msg == "" {
		return DefaultConnectionMessage
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func connErr(kind Kind, address, op string, err error) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{Kind: kind, Address: address, Op: op, Err: err}
}
