// Package adaptfn turns plain functions into HTTP middleware.
//
// A middleware function receives the values of its extractors followed by a
// *Next for the rest of the pipeline, and returns anything that implements
// IntoResponse. Extractors run in order, head extractors first and the single
// body extractor last; the first one to fail answers the request with its
// rejection.
package adaptfn

import (
	"net/http"

	"github.com/rs/zerolog"
)

var logger = zerolog.Nop()

// SetLogger sets the logger used to report rejected requests. Call it before
// serving.
func SetLogger(l zerolog.Logger) {
	logger = l
}

// Adapter is a type that helps with http middleware.
type Adapter func(http.Handler) http.Handler

// Adapt is a helper to add all the adapters required for a given Handler
func Adapt(h http.Handler, adapters ...Adapter) http.Handler {
	// Attach adapters in reverse order because that is what should be implied by the ordering of the caller.
	// The first adapter given is the outermost one and sees the request first.
	for i := len(adapters) - 1; i >= 0; i-- {
		h = adapters[i](h)
	}
	return h
}
