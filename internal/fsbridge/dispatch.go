package fsbridge

import (
	"loopio/internal/loop"
	"loopio/internal/util"

	"log/slog"
)

// Handler receives async completions for a registered token.
type Handler func(kind loop.OpCode, token int, out Outcome)

// Dispatcher owns the callback registry and delivers each completed Request
// exactly once, on the loop goroutine, then releases it.
type Dispatcher struct {
	log			slog.Logger
	registry	*util.Registry[Handler]
}

func CreateDispatcher(size int) *Dispatcher {
	return &Dispatcher {
		log: 		*slog.With("src", "Dispatcher"),
		registry: 	util.CreateRegistry[Handler](size),
	}
}

// Register returns the token to submit async operations under. The token
// stays valid until Deregister. Deregistering does not cancel in-flight
// operations; their completions are dropped with a warning.
func (d *Dispatcher) Register(h Handler) (int, error) {
	token, ok := d.registry.Acquire(h)
	if !ok { return 0, ErrRegistryFull }
	return token, nil
}

func (d *Dispatcher) Deregister(token int) {
	d.registry.Release(token)
}

// deliver runs on the loop goroutine only. Read copy-out into the caller's
// destination happens here, the single point where the native operation has
// already fully finished with the owned buffer.
func (d *Dispatcher) deliver(req *Request, out Outcome) {
	if b, ok := out.(Bytes); ok && req.dst != nil {
		copy(req.dst[req.off:], b.Data)
	}

	h, ok := d.registry.Get(req.token)
	if !ok {
		d.log.Warn("completion for dead token", "token", req.token, "kind", req.kind)
		req.release()
		return
	}

	h(req.kind, req.token, out)
	req.release()
}
