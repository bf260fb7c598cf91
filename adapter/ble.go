package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Zebra BLE parser service UUIDs
const (
	ParserServiceUUID = "38eb4a80-c570-11e3-9507-0002a5d5c51b"
	FromPrinterUUID   = "38eb4a81-c570-11e3-9507-0002a5d5c51b" // notifications from the printer
	ToPrinterUUID     = "38eb4a82-c570-11e3-9507-0002a5d5c51b" // writes to the printer
)

var (
	ErrNoRadio     = errors.New("bluetooth radio unavailable")
	ErrReadTimeout = errors.New("read timed out")
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// GATTConn represents an active BLE connection to a peripheral.
type GATTConn interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
}

// Radio is the opaque platform handle needed to reach the Bluetooth hardware.
type Radio interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Connect establishes a connection to the device with the given MAC address.
	Connect(ctx context.Context, mac string) (GATTConn, error)
}

// BLEOptions configures BLE adapters
type BLEOptions struct {
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	ChunkSize       int           // max bytes per GATT write
	InterChunkDelay time.Duration // pause between chunk writes
}

// DefaultBLEOptions returns the defaults used when nothing is configured
func DefaultBLEOptions() BLEOptions {
	return BLEOptions{
		ConnectTimeout:  15 * time.Second,
		ReadTimeout:     5 * time.Second,
		ChunkSize:       180,
		InterChunkDelay: 10 * time.Millisecond,
	}
}

// BLEAdapter streams bytes to a printer through the parser service of its GATT server
type BLEAdapter struct {
	mac   string
	radio Radio
	opts  BLEOptions

	mu       sync.Mutex
	conn     GATTConn
	tx       Characteristic
	isOpen   bool
	incoming chan []byte
	pending  []byte
}

// NewBLEAdapter creates an unopened adapter for the printer at mac
func NewBLEAdapter(mac string, radio Radio, opts BLEOptions) *BLEAdapter {
	def := DefaultBLEOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = def.ReadTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	return &BLEAdapter{
		mac:   mac,
		radio: radio,
		opts:  opts,
	}
}

// Open connects to the printer and discovers the parser characteristics
func (a *BLEAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return ErrAlreadyOpen
	}
	if a.radio == nil {
		return connErr(KindBLE, a.mac, "open", ErrNoRadio)
	}

	if err := a.radio.Enable(); err != nil {
		return connErr(KindBLE, a.mac, "open", fmt.Errorf("enable adapter: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.opts.ConnectTimeout)
	defer cancel()

	conn, err := a.radio.Connect(ctx, a.mac)
	if err != nil {
		return connErr(KindBLE, a.mac, "open", err)
	}

	tx, err := conn.DiscoverCharacteristic(ParserServiceUUID, ToPrinterUUID)
	if err != nil {
		conn.Disconnect()
		return connErr(KindBLE, a.mac, "open", fmt.Errorf("discover write characteristic: %w", err))
	}

	incoming := make(chan []byte, 64)
	if rx, err := conn.DiscoverCharacteristic(ParserServiceUUID, FromPrinterUUID); err == nil {
		// Printers without the notify characteristic can still be printed to.
		rx.Subscribe(func(data []byte) {
			cp := make([]byte, len(data))
			copy(cp, data)
			select {
			case incoming <- cp:
			default:
			}
		})
	}

	a.conn = conn
	a.tx = tx
	a.incoming = incoming
	a.pending = nil
	a.isOpen = true
	return nil
}

// Write sends data in chunks no larger than the configured chunk size
func (a *BLEAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, connErr(KindBLE, a.mac, "write", ErrNotOpen)
	}

	written := 0
	for _, chunk := range chunkBytes(data, a.opts.ChunkSize) {
		if written > 0 && a.opts.InterChunkDelay > 0 {
			time.Sleep(a.opts.InterChunkDelay)
		}
		if err := a.tx.Write(chunk); err != nil {
			return written, connErr(KindBLE, a.mac, "write", fmt.Errorf("write failed: %w", err))
		}
		written += len(chunk)
	}

	return written, nil
}

// Read returns notification data from the printer, waiting up to the read timeout
func (a *BLEAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	if !a.isOpen {
		a.mu.Unlock()
		return 0, connErr(KindBLE, a.mac, "read", ErrNotOpen)
	}
	if len(a.pending) > 0 {
		n := copy(buf, a.pending)
		a.pending = a.pending[n:]
		a.mu.Unlock()
		return n, nil
	}
	incoming := a.incoming
	a.mu.Unlock()

	select {
	case data := <-incoming:
		n := copy(buf, data)
		if n < len(data) {
			a.mu.Lock()
			a.pending = append(a.pending, data[n:]...)
			a.mu.Unlock()
		}
		return n, nil
	case <-time.After(a.opts.ReadTimeout):
		return 0, ErrReadTimeout
	}
}

// Close disconnects from the printer
func (a *BLEAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return nil
	}

	a.isOpen = false
	err := a.conn.Disconnect()
	a.conn = nil
	a.tx = nil
	a.pending = nil
	return err
}

// IsOpen returns whether the printer is connected
func (a *BLEAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}

// chunkBytes splits data into slices of at most size bytes
func chunkBytes(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for len(data) > size {
		chunks = append(chunks, data[:size])
		data = data[size:]
	}
	return append(chunks, data)
}
