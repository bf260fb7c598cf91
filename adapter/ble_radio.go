package adapter

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// BluetoothRadio wraps tinygo-org/bluetooth as a Radio.
// On macOS device addresses are CoreBluetooth UUIDs rather than MAC addresses;
// the mac argument of Connect carries whichever form the platform uses.
type BluetoothRadio struct {
	adapter *bluetooth.Adapter

	mu      sync.Mutex
	enabled bool
}

// NewBluetoothRadio creates a radio backed by the system default adapter.
func NewBluetoothRadio() *BluetoothRadio {
	return &BluetoothRadio{adapter: bluetooth.DefaultAdapter}
}

// Enable powers on the adapter. Once it succeeds later calls are no-ops.
func (r *BluetoothRadio) Enable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return nil
	}
	if err := r.adapter.Enable(); err != nil {
		return err
	}
	r.enabled = true
	return nil
}

func (r *BluetoothRadio) Connect(ctx context.Context, mac string) (GATTConn, error) {
	var addr bluetooth.Address
	addr.Set(mac)

	// Connect blocks with its own timeout; ctx only bounds how long we wait for it.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// A connection that completes after we gave up must not leak.
		go func() {
			if res := <-ch; res.err == nil {
				res.device.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connect to %s: %w", mac, ctx.Err())
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("connect to %s: %w", mac, res.err)
		}
		return &bluetoothConn{device: res.device}, nil
	}
}

var _ Radio = (*BluetoothRadio)(nil)

type bluetoothConn struct {
	device bluetooth.Device
}

func (c *bluetoothConn) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	chrUUID, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("service %s not found", serviceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{chrUUID})
	if err != nil {
		return nil, fmt.Errorf("discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("characteristic %s not found", charUUID)
	}

	return &bluetoothCharacteristic{char: chars[0]}, nil
}

func (c *bluetoothConn) Disconnect() error {
	return c.device.Disconnect()
}

type bluetoothCharacteristic struct {
	char bluetooth.DeviceCharacteristic
}

func (c *bluetoothCharacteristic) Write(data []byte) error {
	_, err := c.char.WriteWithoutResponse(data)
	return err
}

func (c *bluetoothCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(cb)
}
