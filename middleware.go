package adaptfn

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Middleware is a Handler attached to an inner service. It is itself a
// Service and an http.Handler, and is safe for concurrent use.
type Middleware[S any] struct {
	handler Handler[S]
	state   *S
	inner   atomic.Pointer[serviceRef]
}

func newMiddleware[S any](h Handler[S], state *S, inner Service) *Middleware[S] {
	m := &Middleware[S]{handler: h, state: state}
	m.inner.Store(&serviceRef{svc: inner})
	return m
}

// Ready waits for the inner service.
func (m *Middleware[S]) Ready(ctx context.Context) error {
	return m.inner.Load().svc.Ready(ctx)
}

// Call handles r. Every call takes its own handle to the inner service: the
// stored handle is replaced with a fresh clone and the previous one belongs to
// this call alone.
func (m *Middleware[S]) Call(r *http.Request) *Future {
	fresh := &serviceRef{svc: CloneService(m.inner.Load().svc)}
	ready := m.inner.Swap(fresh).svc

	h, state := m.handler, m.state
	return Spawn(r.Context(), func(ctx context.Context) *Response {
		return h.serve(r.WithContext(ctx), state, ready)
	})
}

// Clone returns an independent middleware sharing the function and state.
func (m *Middleware[S]) Clone() Service {
	return newMiddleware(m.handler, m.state, CloneService(m.inner.Load().svc))
}

// ServeHTTP runs the middleware and writes its response to w.
func (m *Middleware[S]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := m.Call(r).Wait().Send(w); err != nil {
		logger.Debug().Err(err).Str("middleware", m.handler.name).Msg("writing response")
	}
}
