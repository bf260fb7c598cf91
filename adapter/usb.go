package adapter

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/gousb"
)

// Interface class codes
// Reference: http://www.usb.org/developers/defined_class
const (
	IfaceClassPrinter = 0x07
)

var ErrNoPrinter = errors.New("cannot find printer")

// USBOptions selects which USB printer to use. Zero values mean "any printer".
type USBOptions struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
}

// USBAdapter manages USB printer communication
type USBAdapter struct {
	opts        USBOptions
	ctx         *gousb.Context
	device      *gousb.Device
	iface       *gousb.Interface
	done        func()
	outEndpoint *gousb.OutEndpoint
	inEndpoint  *gousb.InEndpoint
	isOpen      bool
	mu          sync.Mutex
}

// NewUSBAdapter creates an unopened adapter for the printer matching opts
func NewUSBAdapter(opts USBOptions) *USBAdapter {
	return &USBAdapter{opts: opts}
}

func (a *USBAdapter) target() string {
	switch {
	case a.opts.Serial != "":
		return "serial:" + a.opts.Serial
	case a.opts.VendorID != 0:
		return fmt.Sprintf("%04x:%04x", a.opts.VendorID, a.opts.ProductID)
	default:
		return "auto"
	}
}

// IsPrinter checks if a device exposes a printer-class interface
func IsPrinter(dev *gousb.Device) bool {
	if dev == nil {
		return false
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil {
		return false
	}

	desc, ok := dev.Desc.Configs[cfgNum]
	if !ok {
		return false
	}

	return printerInterface(desc) >= 0
}

func printerInterface(desc gousb.ConfigDesc) int {
	for _, iface := range desc.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return iface.Number
			}
		}
	}
	return -1
}

// findDevice opens the first device matching opts and closes every other one
func findDevice(ctx *gousb.Context, opts USBOptions) (*gousb.Device, error) {
	if opts.Serial == "" && opts.VendorID != 0 {
		device, err := ctx.OpenDeviceWithVIDPID(gousb.ID(opts.VendorID), gousb.ID(opts.ProductID))
		if err != nil {
			return nil, err
		}
		if device == nil {
			return nil, ErrNoPrinter
		}
		return device, nil
	}

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return true
	})
	if err != nil && len(devices) == 0 {
		return nil, err
	}

	var found *gousb.Device
	for _, dev := range devices {
		if found == nil && matches(dev, opts) {
			found = dev
			continue
		}
		dev.Close()
	}

	if found == nil {
		return nil, ErrNoPrinter
	}
	return found, nil
}

func matches(dev *gousb.Device, opts USBOptions) bool {
	if !IsPrinter(dev) {
		return false
	}
	if opts.Serial != "" {
		s, err := dev.SerialNumber()
		return err == nil && s == opts.Serial
	}
	return true
}

// Open finds the device and claims its printer interface
func (a *USBAdapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return ErrAlreadyOpen
	}

	ctx := gousb.NewContext()
	device, err := findDevice(ctx, a.opts)
	if err != nil {
		ctx.Close()
		return connErr(KindUSB, a.target(), "open", err)
	}

	if err := a.claim(device); err != nil {
		device.Close()
		ctx.Close()
		return connErr(KindUSB, a.target(), "open", err)
	}

	a.ctx = ctx
	a.device = device
	a.isOpen = true
	return nil
}

func (a *USBAdapter) claim(device *gousb.Device) error {
	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		device.SetAutoDetach(true)
	}

	cfgNum, err := device.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}

	cfg, err := device.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	ifaceNum := printerInterface(cfg.Desc)
	if ifaceNum < 0 {
		cfg.Close()
		return errors.New("no printer interface found")
	}

	iface, err := cfg.Interface(ifaceNum, 0)
	if err != nil {
		cfg.Close()
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	var out *gousb.OutEndpoint
	var in *gousb.InEndpoint
	for _, epDesc := range iface.Setting.Endpoints {
		if epDesc.Direction == gousb.EndpointDirectionOut && out == nil {
			if ep, err := iface.OutEndpoint(epDesc.Number); err == nil {
				out = ep
			}
		}
		if epDesc.Direction == gousb.EndpointDirectionIn && in == nil {
			if ep, err := iface.InEndpoint(epDesc.Number); err == nil {
				in = ep
			}
		}
	}

	if out == nil {
		iface.Close()
		cfg.Close()
		return errors.New("cannot find output endpoint from printer")
	}

	a.iface = iface
	a.done = func() {
		iface.Close()
		cfg.Close()
	}
	a.outEndpoint = out
	a.inEndpoint = in
	return nil
}

// Write sends data to the printer
func (a *USBAdapter) Write(data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, connErr(KindUSB, a.target(), "write", ErrNotOpen)
	}

	n, err := a.outEndpoint.Write(data)
	if err != nil {
		return n, connErr(KindUSB, a.target(), "write", fmt.Errorf("write failed: %w", err))
	}
	if n != len(data) {
		return n, connErr(KindUSB, a.target(), "write", ErrShortWrite)
	}

	return n, nil
}

// Read reads data from the printer
func (a *USBAdapter) Read(buf []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return 0, connErr(KindUSB, a.target(), "read", ErrNotOpen)
	}

	if a.inEndpoint == nil {
		return 0, errors.New("input endpoint not available")
	}

	n, err := a.inEndpoint.Read(buf)
	if err != nil {
		return n, fmt.Errorf("read failed: %w", err)
	}

	return n, nil
}

// Close releases the interface, the device and the libusb context
func (a *USBAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen {
		return nil
	}

	var errs []error

	if a.done != nil {
		a.done()
		a.done = nil
	}

	if a.device != nil {
		if err := a.device.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if a.ctx != nil {
		if err := a.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	a.isOpen = false
	a.iface = nil
	a.outEndpoint = nil
	a.inEndpoint = nil
	a.device = nil
	a.ctx = nil

	return errors.Join(errs...)
}

// IsOpen returns whether the device is open
func (a *USBAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}
