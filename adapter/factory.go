package adapter

import "fmt"

// Factory builds unopened adapters for a transport kind and address
type Factory interface {
	New(kind Kind, address string) (Adapter, error)
}

// Options holds per-kind settings for DefaultFactory
type Options struct {
	TCP    TCPOptions
	BLE    BLEOptions
	USB    USBOptions
	Serial SerialOptions
}

// DefaultOptions returns the defaults for every transport kind
func DefaultOptions() Options {
	return Options{
		TCP:    DefaultTCPOptions(),
		BLE:    DefaultBLEOptions(),
		Serial: DefaultSerialOptions(),
	}
}

// DefaultFactory creates the real adapters. Radio may be nil when the host has
// no Bluetooth; BLE adapters then fail on Open.
type DefaultFactory struct {
	Options Options
	Radio   Radio
}

// NewFactory creates a DefaultFactory
func NewFactory(opts Options, radio Radio) *DefaultFactory {
	return &DefaultFactory{Options: opts, Radio: radio}
}

// New returns an adapter for address. For USB the address is an optional
// device serial number overriding the configured selector.
func (f *DefaultFactory) New(kind Kind, address string) (Adapter, error) {
	switch kind {
	case KindTCP:
		return NewTCPAdapter(address, f.Options.TCP), nil
	case KindBLE:
		return NewBLEAdapter(address, f.Radio, f.Options.BLE), nil
	case KindUSB:
		opts := f.Options.USB
		if address != "" {
			opts.Serial = address
		}
		return NewUSBAdapter(opts), nil
	case KindSerial:
		return NewSerialAdapter(address, f.Options.Serial), nil
	default:
		return nil, fmt.Errorf("unsupported transport %s", kind)
	}
}
