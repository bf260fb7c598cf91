// Package router dispatches named printer operations to transport adapters.
//
// Each call is independent: it validates its arguments, opens exactly one
// adapter, performs one action and closes the adapter before returning. The
// Router holds no per-call state and is safe for concurrent use.
package router

import (
	"fmt"

	"github.com/nixxel-company-limited/zpl-bridge/adapter"
	"go.uber.org/zap"
)

// SuccessMessage is reported by every successful print
const SuccessMessage = "Print successful"

// PrintResult is returned by the print operations
type PrintResult struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
}

// Router maps operations onto adapters built by a Factory
type Router struct {
	factory  adapter.Factory
	infoKeys []string
	logger   *zap.Logger
}

// New creates a router that logs through the global zap logger
func New(factory adapter.Factory, infoKeys []string) *Router {
	return NewWithLogger(factory, infoKeys, zap.L().Named("router"))
}

// NewWithLogger creates a router with a custom logger
func NewWithLogger(factory adapter.Factory, infoKeys []string, logger *zap.Logger) *Router {
	return &Router{
		factory:  factory,
		infoKeys: infoKeys,
		logger:   logger,
	}
}

// Call validates args for method and executes it. The result is a PrintResult
// or an adapter.DiscoveryInfo; errors are always *Error.
func (r *Router) Call(method string, args Arguments) (any, error) {
	req, err := Parse(method, args)
	if err != nil {
		r.logger.Debug("Rejected call", zap.String("method", method), zap.Error(err))
		return nil, err
	}

	result, err := r.Execute(req)
	if err != nil {
		r.logger.Warn("Call failed", zap.String("method", method), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// Execute runs an already validated request
func (r *Router) Execute(req Request) (any, error) {
	var (
		result any
		err    error
	)
	switch req := req.(type) {
	case PrintRequest:
		result, err = r.print(req)
	case InfoRequest:
		result, err = r.info(req)
	default:
		return nil, unimplemented(fmt.Sprintf("%T", req))
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Router) print(req PrintRequest) (PrintResult, error) {
	err := r.withAdapter(req.Kind, req.Address, func(a adapter.Adapter) error {
		n, err := a.Write(req.Payload)
		if err != nil {
			return err
		}
		r.logger.Info("Wrote bytes to printer",
			zap.Stringer("transport", req.Kind),
			zap.String("address", req.Address),
			zap.Int("bytes", n))
		return nil
	})
	if err != nil {
		return PrintResult{}, err
	}
	return PrintResult{Success: true, Message: SuccessMessage}, nil
}

func (r *Router) info(req InfoRequest) (adapter.DiscoveryInfo, error) {
	var info adapter.DiscoveryInfo
	err := r.withAdapter(req.Kind, req.Address, func(a adapter.Adapter) error {
		var err error
		info, err = adapter.QueryInfo(a, req.Kind, req.Address, r.infoKeys)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// withAdapter opens one adapter for fn and closes it on every exit path,
// including a failed Open and a panic in fn.
func (r *Router) withAdapter(kind adapter.Kind, address string, fn func(adapter.Adapter) error) error {
	a, err := r.factory.New(kind, address)
	if err != nil {
		return connectionError(err)
	}

	defer func() {
		if err := a.Close(); err != nil {
			r.logger.Warn("Error closing adapter",
				zap.Stringer("transport", kind),
				zap.String("address", address),
				zap.Error(err))
		}
	}()

	r.logger.Debug("Opening adapter", zap.Stringer("transport", kind), zap.String("address", address))
	if err := a.Open(); err != nil {
		return connectionError(err)
	}

	if err := fn(a); err != nil {
		return connectionError(err)
	}
	return nil
}
