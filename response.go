package adaptfn

import (
	"net/http"
	"strconv"
)

// Response is the uniform response every middleware result is normalized into.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IntoResponse is implemented by anything that can be turned into a Response.
type IntoResponse interface {
	IntoResponse() *Response
}

// NewResponse creates a response with the given status code and body.
func NewResponse(status int, body []byte) *Response {
	return &Response{StatusCode: status, Header: make(http.Header), Body: body}
}

// IntoResponse returns the response itself.
func (r *Response) IntoResponse() *Response { return r }

// Send writes the response to w.
func (r *Response) Send(w http.ResponseWriter) error {
	r = ToResponse(r)
	h := w.Header()
	for k, vs := range r.Header {
		h[k] = append([]string(nil), vs...)
	}
	if h.Get("Content-Length") == "" && len(r.Body) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}
	w.WriteHeader(r.StatusCode)
	_, err := w.Write(r.Body)
	return err
}

// Clone returns a copy of r with its own header map. The body is shared.
func (r *Response) Clone() *Response {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return &c
}

// ToResponse normalizes v. A nil value is an empty 200 response. A response
// that needs normalizing is copied first; v itself is never modified.
func ToResponse(v IntoResponse) *Response {
	var r *Response
	if v != nil {
		r = v.IntoResponse()
	}
	if r == nil {
		return &Response{StatusCode: http.StatusOK, Header: make(http.Header)}
	}
	if r.StatusCode == 0 || r.Header == nil {
		r = r.Clone()
		if r.StatusCode == 0 {
			r.StatusCode = http.StatusOK
		}
	}
	return r
}

// Status is a bodyless response with the given status code.
type Status int

// IntoResponse returns a response carrying the status text as its body.
func (s Status) IntoResponse() *Response {
	r := NewResponse(int(s), []byte(http.StatusText(int(s))))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// Text is a 200 plain text response.
type Text string

// IntoResponse returns the text as a 200 response.
func (t Text) IntoResponse() *Response {
	r := NewResponse(http.StatusOK, []byte(t))
	r.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return r
}

// Redirect builds a redirect response pointing at target.
func Redirect(target string, code int) *Response {
	r := NewResponse(code, nil)
	r.Header.Set("Location", target)
	return r
}
