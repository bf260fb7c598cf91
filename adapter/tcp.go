package adapter

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultZPLPort is the raw ZPL port printers listen on
const DefaultZPLPort = 9100

// TCPOptions configures TCP adapters
type TCPOptions struct {
	Port         int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultTCPOptions returns the defaults used when nothing is configured
func DefaultTCPOptions() TCPOptions {
	return TCPOptions{
		Port:         DefaultZPLPort,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// TCPAdapter talks to a network printer over a stream socket
type TCPAdapter struct {
	address string
	opts    TCPOptions
	conn    net.Conn
	isOpen  bool
	mu      sync.Mutex
}

// NewTCPAdapter creates an unopened adapter for address, which may be "host" or "host:port"
func NewTCPAdapter(address string, opts TCPOptions) *TCPAdapter {
	if opts.Port <= 0 {
		opts.Port = DefaultZPLPort
	}
	return &TCPAdapter{
		address: withDefaultPort(address, opts.Port),
		opts:    opts,
	}
}

func withDefaultPort(address string, port int) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// Address returns the dialed host:port
func (a *TCPAdapter) Address() string {
	return a.address
}

// Open dials the printer
func (a *TCPAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return ErrAlreadyOpen
	}

	conn, err := net.DialTimeout("tcp", a.address, a.opts.DialTimeout)
	if err != nil {
		return connErr(KindTCP, a.address, "open", err)
	}

	a.conn = conn
	a.isOpen = true
	return nil
}

// Write sends data to the printer
func (a *TCPAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, connErr(KindTCP, a.address, "write", ErrNotOpen)
	}

	if a.opts.WriteTimeout > 0 {
		a.conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
	}

	n, err := a.conn.Write(data)
	if err != nil {
		return n, connErr(KindTCP, a.address, "write", fmt.Errorf("write failed: %w", err))
	}
	if n != len(data) {
		return n, connErr(KindTCP, a.address, "write", ErrShortWrite)
	}

	return n, nil
}

// Read reads data from the printer
func (a *TCPAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, connErr(KindTCP, a.address, "read", ErrNotOpen)
	}

	if a.opts.ReadTimeout > 0 {
		a.conn.SetReadDeadline(time.Now().Add(a.opts.ReadTimeout))
	}

	// io.EOF passes through unwrapped so readers can detect end of stream
	return a.conn.Read(buf)
}

// Close closes the socket
func (a *TCPAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return nil
	}

	a.isOpen = false
	err := a.conn.Close()
	a.conn = nil
	return err
}

// IsOpen returns whether the socket is open
func (a *TCPAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}
