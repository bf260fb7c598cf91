package router

import (
	"net"
	"sort"
	"strconv"

	"github.com/nixxel-company-limited/zpl-bridge/adapter"
	"github.com/spf13/cast"
)

// Method names accepted by the router
const (
	MethodPrintOverTCP                = "printOverTCP"
	MethodPrintOverBluetooth          = "printOverBluetooth"
	MethodGetPrinterInfo              = "getPrinterInfo"
	MethodPrintOverUSB                = "printOverUSB"
	MethodPrintOverSerial             = "printOverSerial"
	MethodGetPrinterInfoOverBluetooth = "getPrinterInfoOverBluetooth"
)

// aliases keeps the method names used by the mobile plugin channel working
var aliases = map[string]string{
	"printZPLOverTCPIP":     MethodPrintOverTCP,
	"printZPLOverBluetooth": MethodPrintOverBluetooth,
	"onGetPrinterInfo":      MethodGetPrinterInfo,
}

// Arguments is the untyped argument bag of a call
type Arguments map[string]any

// Request is one of PrintRequest or InfoRequest
type Request interface {
	request()
}

// PrintRequest writes Payload to the printer at Address
type PrintRequest struct {
	Kind    adapter.Kind
	Address string
	Payload []byte
}

// InfoRequest reads printer metadata from the printer at Address
type InfoRequest struct {
	Kind    adapter.Kind
	Address string
}

func (PrintRequest) request() {}
func (InfoRequest) request() {}

type parseFunc func(Arguments) (Request, error)

var parsers = map[string]parseFunc{
	MethodPrintOverTCP:                parsePrintOverTCP,
	MethodPrintOverBluetooth:          parsePrintOverBluetooth,
	MethodGetPrinterInfo:              parseGetPrinterInfo,
	MethodPrintOverUSB:                parsePrintOverUSB,
	MethodPrintOverSerial:             parsePrintOverSerial,
	MethodGetPrinterInfoOverBluetooth: parseGetPrinterInfoOverBluetooth,
}

// Methods returns the canonical method names, sorted
func Methods() []string {
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parse validates args for method and returns the typed request
func Parse(method string, args Arguments) (Request, error) {
	if canonical, ok := aliases[method]; ok {
		method = canonical
	}
	parse, ok := parsers[method]
	if !ok {
		return nil, unimplemented(method)
	}
	return parse(args)
}

func parsePrintOverTCP(args Arguments) (Request, error) {
	ip, err := requireString(args, "ip", "IP Address is required")
	if err != nil {
		return nil, err
	}
	data, err := requireString(args, "data", "Data is required")
	if err != nil {
		return nil, err
	}
	addr, err := tcpAddress(ip, args)
	if err != nil {
		return nil, err
	}
	return PrintRequest{Kind: adapter.KindTCP, Address: addr, Payload: []byte(data)}, nil
}

func parsePrintOverBluetooth(args Arguments) (Request, error) {
	mac, err := requireString(args, "mac", "MAC Address is required")
	if err != nil {
		return nil, err
	}
	data, err := requireString(args, "data", "Data is required")
	if err != nil {
		return nil, err
	}
	return PrintRequest{Kind: adapter.KindBLE, Address: mac, Payload: []byte(data)}, nil
}

func parseGetPrinterInfo(args Arguments) (Request, error) {
	ip, err := requireString(args, "ip", "IP Address is required")
	if err != nil {
		return nil, err
	}
	addr, err := tcpAddress(ip, args)
	if err != nil {
		return nil, err
	}
	return InfoRequest{Kind: adapter.KindTCP, Address: addr}, nil
}

func parsePrintOverUSB(args Arguments) (Request, error) {
	data, err := requireString(args, "data", "Data is required")
	if err != nil {
		return nil, err
	}
	serial, _ := optionalString(args, "serial")
	return PrintRequest{Kind: adapter.KindUSB, Address: serial, Payload: []byte(data)}, nil
}

func parsePrintOverSerial(args Arguments) (Request, error) {
	port, err := requireString(args, "port", "Port is required")
	if err != nil {
		return nil, err
	}
	data, err := requireString(args, "data", "Data is required")
	if err != nil {
		return nil, err
	}
	return PrintRequest{Kind: adapter.KindSerial, Address: port, Payload: []byte(data)}, nil
}

func parseGetPrinterInfoOverBluetooth(args Arguments) (Request, error) {
	mac, err := requireString(args, "mac", "MAC Address is required")
	if err != nil {
		return nil, err
	}
	return InfoRequest{Kind: adapter.KindBLE, Address: mac}, nil
}

// requireString returns args[key] as a string, failing when it is absent or empty
func requireString(args Arguments, key, message string) (string, error) {
	s, ok := optionalString(args, key)
	if !ok {
		return "", missingArgument(key, message)
	}
	return s, nil
}

func optionalString(args Arguments, key string) (string, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}

// tcpAddress applies the optional "port" argument to ip
func tcpAddress(ip string, args Arguments) (string, error) {
	v, ok := args["port"]
	if !ok || v == nil {
		return ip, nil
	}
	port, err := cast.ToIntE(v)
	if err != nil || port <= 0 || port > 65535 {
		return "", missingArgument("port", "Port must be a number between 1 and 65535")
	}
	host := ip
	if h, _, err := net.SplitHostPort(ip); err == nil {
		host = h
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
