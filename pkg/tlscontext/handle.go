package tlscontext

import "sync/atomic"

// ActiveContextHandle is a single-writer, many-reader atomic cell
// holding the current TlsContext. Writers are the certificate
// lifecycle worker and explicit reload triggers; readers are
// accept-loop tasks that snapshot it once per new connection.
//
// Any accept that sampled context C_i completes its handshake under
// C_i even if C_{i+1} is published mid-handshake: snapshot() and
// publish() never block each other, and a context's reference count
// only reaches zero once every connection that acquired it has
// released it.
type ActiveContextHandle struct {
	ptr atomic.Pointer[TlsContext]
}

// publish atomically replaces the current context with ctx.
func (h *ActiveContextHandle) publish(ctx *TlsContext) {
	h.ptr.Store(ctx)
}

// snapshot reads the current context and acquires a reference to it
// on behalf of the caller.
func (h *ActiveContextHandle) snapshot() *TlsContext {
	ctx := h.ptr.Load()
	if ctx != nil {
		ctx.acquire()
	}
	return ctx
}
