package adaptfn

import (
	"net/http"
	"sync/atomic"
)

// Next is the remainder of the pipeline, including the final handler. It can
// be run at most once. Not running it short-circuits the request.
type Next struct {
	inner atomic.Pointer[serviceRef]
}

type serviceRef struct {
	svc Service
}

func newNext(inner Service) *Next {
	n := &Next{}
	n.inner.Store(&serviceRef{svc: inner})
	return n
}

// Start forwards r to the rest of the pipeline without waiting for it.
// A Next can be started or run once; using it again panics.
func (n *Next) Start(r *http.Request) *Future {
	ref := n.inner.Swap(nil)
	if ref == nil {
		panic("adaptfn: Next used more than once")
	}
	return ref.svc.Call(r)
}

// Run is Start followed by Wait. The returned response belongs to the caller:
// its header can be changed without touching anything the inner stage kept.
func (n *Next) Run(r *http.Request) *Response {
	return ToResponse(n.Start(r).Wait()).Clone()
}
