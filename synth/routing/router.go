package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/algo-patch/synth/audiograph"
	"github.com/cwbudde/algo-patch/synth/registry"
)

// Op names a routing operation.
type Op string

const (
	OpConnect    Op = "connect"
	OpDisconnect Op = "disconnect"
)

// Result is the outcome of one routing primitive.
type Result struct {
	Op   Op
	From PortRef
	To   PortRef
	Err  error
}

// OK reports whether the operation took effect.
func (r Result) OK() bool { return r.Err == nil }

// Reporter receives every routing result.
type Reporter func(Result)

// Resolver returns the live attachment and type definition of a module.
// ok is false when the module has no live node.
type Resolver func(module string) (att *Attachment, def registry.ModuleTypeDef, ok bool)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger for swallowed routing failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReporter registers a callback for every routing result.
func WithReporter(fn Reporter) Option {
	return func(r *Router) {
		r.report = fn
	}
}

// Router applies cables to a processing context. It never fails loudly:
// every outcome is returned as a Result, logged, and reported.
type Router struct {
	pc     *audiograph.Context
	logger *slog.Logger
	report Reporter
}

// NewRouter returns a router over pc.
func NewRouter(pc *audiograph.Context, opts ...Option) *Router {
	r := &Router{
		pc:     pc,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Connect routes from → to in the live context.
func (r *Router) Connect(from, to PortRef, resolve Resolver) Result {
	return r.apply(OpConnect, from, to, resolve, func(src, dst Endpoint) error {
		return r.pc.Connect(src.Node, src.Port, dst.Node, dst.Port)
	})
}

// Disconnect removes the live route from → to.
func (r *Router) Disconnect(from, to PortRef, resolve Resolver) Result {
	return r.apply(OpDisconnect, from, to, resolve, func(src, dst Endpoint) error {
		return r.pc.Disconnect(src.Node, src.Port, dst.Node, dst.Port)
	})
}

func (r *Router) apply(op Op, from, to PortRef, resolve Resolver, fn func(src, dst Endpoint) error) Result {
	res := Result{Op: op, From: from, To: to}

	src, err := ResolveOutput(from, resolve)
	if err == nil {
		var dst Endpoint

		dst, err = ResolveInput(to, resolve)
		if err == nil {
			err = fn(src, dst)
		}
	}

	res.Err = err
	r.log(res)

	if r.report != nil {
		r.report(res)
	}

	return res
}

func (r *Router) log(res Result) {
	if res.Err == nil {
		return
	}

	level := slog.LevelWarn
	if errors.Is(res.Err, ErrUnresolved) || errors.Is(res.Err, audiograph.ErrNotConnected) {
		level = slog.LevelDebug
	}

	r.logger.Log(context.Background(), level, "routing failed",
		"op", string(res.Op), "from", res.From.String(), "to", res.To.String(), "err", res.Err)
}

// ResolveOutput maps a logical output port to its live endpoint.
func ResolveOutput(ref PortRef, resolve Resolver) (Endpoint, error) {
	att, def, ok := resolve(ref.Module)
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s: no live node", ErrUnresolved, ref)
	}

	port, ok := def.Output(ref.Port)
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s: no such output", ErrUnresolved, ref)
	}

	return att.Output(port.Channel)
}

// ResolveInput maps a logical input port to its live endpoint.
func ResolveInput(ref PortRef, resolve Resolver) (Endpoint, error) {
	att, def, ok := resolve(ref.Module)
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s: no live node", ErrUnresolved, ref)
	}

	port, ok := def.Input(ref.Port)
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %s: no such input", ErrUnresolved, ref)
	}

	return att.Input(port.Channel)
}
