package adaptfn

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Parts is the head of a request: everything except the body. Head extractors
// may read and modify it.
type Parts struct {
	Method     string
	URL        *url.URL
	Proto      string
	Header     http.Header
	Host       string
	RemoteAddr string
	RequestURI string

	ctx  context.Context
	orig *http.Request
}

// SplitRequest separates r into its head and its body.
func SplitRequest(r *http.Request) (*Parts, io.ReadCloser) {
	body := r.Body
	if body == nil {
		body = http.NoBody
	}
	return &Parts{
		Method:     r.Method,
		URL:        r.URL,
		Proto:      r.Proto,
		Header:     r.Header,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		RequestURI: r.RequestURI,
		ctx:        r.Context(),
		orig:       r,
	}, body
}

// Context returns the request context.
func (p *Parts) Context() context.Context { return p.ctx }

// WithValue stores val under key in the request context. The value is visible
// to later extractors and to the rebuilt request.
func (p *Parts) WithValue(key, val any) {
	p.ctx = context.WithValue(p.ctx, key, val)
}

// Join rebuilds a full request from the head and body.
func (p *Parts) Join(body io.ReadCloser) *http.Request {
	r := p.orig.WithContext(p.ctx)
	r.Method = p.Method
	r.URL = p.URL
	r.Proto = p.Proto
	r.Header = p.Header
	r.Host = p.Host
	r.RemoteAddr = p.RemoteAddr
	r.RequestURI = p.RequestURI
	r.Body = body
	return r
}
