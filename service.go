package adaptfn

import (
	"bytes"
	"context"
	"net/http"
)

// Service asynchronously maps a request to a response. A Service cannot fail:
// every failure is already a response by the time it leaves Call.
type Service interface {
	// Ready blocks until the service can accept a call or ctx ends.
	Ready(ctx context.Context) error
	// Call starts handling r.
	Call(r *http.Request) *Future
}

// Cloner is implemented by services that hold per-handle state. Clone must be
// cheap and return an equivalent, independently usable handle.
type Cloner interface {
	Clone() Service
}

// CloneService returns a fresh handle for s. Services without per-handle
// state are returned as is.
func CloneService(s Service) Service {
	if c, ok := s.(Cloner); ok {
		return c.Clone()
	}
	return s
}

// ServiceFunc adapts an ordinary function to a Service.
type ServiceFunc func(r *http.Request) *Response

// Ready is always nil.
func (f ServiceFunc) Ready(context.Context) error { return nil }

// Call runs f on its own goroutine.
func (f ServiceFunc) Call(r *http.Request) *Future {
	return Spawn(r.Context(), func(ctx context.Context) *Response {
		return f(r.WithContext(ctx))
	})
}

type handlerService struct {
	h http.Handler
}

// HandlerService turns an http.Handler into a Service by recording what it
// writes.
func HandlerService(h http.Handler) Service {
	return handlerService{h: h}
}

func (s handlerService) Ready(context.Context) error { return nil }

func (s handlerService) Call(r *http.Request) *Future {
	return Spawn(r.Context(), func(ctx context.Context) *Response {
		rec := &recorder{header: make(http.Header)}
		s.h.ServeHTTP(rec, r.WithContext(ctx))
		return rec.response()
	})
}

// recorder buffers everything a handler writes.
type recorder struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
}

func (r *recorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.body.Write(p)
}

func (r *recorder) response() *Response {
	return &Response{StatusCode: r.status, Header: r.header, Body: r.body.Bytes()}
}

type serviceHandler struct {
	s Service
}

// Serve exposes s as an http.Handler.
func Serve(s Service) http.Handler {
	if h, ok := s.(http.Handler); ok {
		return h
	}
	return serviceHandler{s: s}
}

func (h serviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.s.Call(r).Wait().Send(w); err != nil {
		logger.Debug().Err(err).Msg("writing response")
	}
}
