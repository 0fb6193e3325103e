package adaptfn

import (
	"fmt"
	"net/http"
)

// NoState is the state of layers created without one.
type NoState struct{}

// Layer describes a middleware before it is attached to anything. It is a
// small value; copy it freely to attach it to several services.
type Layer[S any] struct {
	handler Handler[S]
	state   *S
}

// FromFn creates a stateless layer from h.
//
//	auth := adaptfn.FromFn(adaptfn.Func2(
//		adaptfn.Header[adaptfn.NoState]("Authorization"),
//		adaptfn.Request[adaptfn.NoState](),
//		func(ctx context.Context, token string, r *http.Request, next *adaptfn.Next) adaptfn.IntoResponse {
//			if !valid(token) {
//				return adaptfn.Status(http.StatusUnauthorized)
//			}
//			return next.Run(r)
//		},
//	))
func FromFn(h Handler[NoState]) Layer[NoState] {
	return FromFnWithState(NoState{}, h)
}

// FromFnWithState creates a layer whose extractors all see state.
func FromFnWithState[S any](state S, h Handler[S]) Layer[S] {
	return FromFnWithSharedState(&state, h)
}

// FromFnWithSharedState is FromFnWithState for state the caller already
// shares. The layer never modifies it.
func FromFnWithSharedState[S any](state *S, h Handler[S]) Layer[S] {
	return Layer[S]{handler: h, state: state}
}

// Attach wraps inner with the middleware.
func (l Layer[S]) Attach(inner Service) *Middleware[S] {
	return newMiddleware(l.handler, l.state, inner)
}

// Wrap is Attach returning a Service, so layers of different state types
// can be stacked with Compose.
func (l Layer[S]) Wrap(inner Service) Service {
	return l.Attach(inner)
}

// Adapter lets the layer take part in an ordinary http.Handler chain.
func (l Layer[S]) Adapter() Adapter {
	return func(h http.Handler) http.Handler {
		return l.Attach(HandlerService(h))
	}
}

func (l Layer[S]) String() string {
	return fmt.Sprintf("Layer(%s)", l.handler.name)
}

// ServiceLayer is anything that can wrap a Service.
type ServiceLayer interface {
	Wrap(inner Service) Service
}

// Compose wraps inner with layers. The first layer is the outermost one.
func Compose(inner Service, layers ...ServiceLayer) Service {
	for i := len(layers) - 1; i >= 0; i-- {
		inner = layers[i].Wrap(inner)
	}
	return inner
}
