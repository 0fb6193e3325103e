package adaptfn

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type none = NoState

// Notify logs when a request starts being processed and when it is finished.
func Notify(l zerolog.Logger) Layer[NoState] {
	return FromFn(Func3(Method[none](), URI[none](), Request[none](),
		func(_ context.Context, method string, u *url.URL, r *http.Request, next *Next) IntoResponse {
			start := time.Now()
			l.Info().Str("method", method).Stringer("url", u).Msg("handling request")
			resp := next.Run(r)
			l.Info().
				Str("method", method).
				Stringer("url", u).
				Int("status", resp.StatusCode).
				Dur("duration", time.Since(start)).
				Msg("request handled")
			return resp
		}))
}

// GetAndOtherRequest passes GET requests on and sends requests with the given
// method to other. All other requests are given a http.StatusMethodNotAllowed error.
func GetAndOtherRequest(other Service, method string) Layer[NoState] {
	return FromFn(Func2(Method[none](), Request[none](),
		func(_ context.Context, m string, r *http.Request, next *Next) IntoResponse {
			switch m {
			case method:
				return other.Call(r).Wait()
			case http.MethodGet:
				return next.Run(r)
			default:
				return methodNotAllowed()
			}
		}))
}

// RequestMethod only lets the given request method through.
// All other requests are given a http.StatusMethodNotAllowed error.
func RequestMethod(method string) Layer[NoState] {
	return FromFn(Func2(Method[none](), Request[none](),
		func(_ context.Context, m string, r *http.Request, next *Next) IntoResponse {
			if m != method {
				return methodNotAllowed()
			}
			return next.Run(r)
		}))
}

func methodNotAllowed() *Rejection {
	return Reject(http.StatusMethodNotAllowed, "method_not_allowed", "Request method not allowed")
}

// AddHeader sets a response header unless the handler already set it.
func AddHeader(name, value string) Layer[NoState] {
	return AddHeaderWithFunc(name, func() string { return value })
}

// AddHeaderWithFunc is AddHeader with a value computed per request.
// This is useful for things like CSRF tokens.
func AddHeaderWithFunc(name string, tg func() string) Layer[NoState] {
	return FromFn(Func1(Request[none](),
		func(_ context.Context, r *http.Request, next *Next) IntoResponse {
			resp := next.Run(r)
			if resp.Header.Get(name) == "" {
				resp.Header.Set(name, tg())
			}
			return resp
		}))
}

// AddCookieWithFunc adds the cookie returned by tg to every response.
// A nil cookie adds nothing.
func AddCookieWithFunc(tg func() *http.Cookie) Layer[NoState] {
	return FromFn(Func1(Request[none](),
		func(_ context.Context, r *http.Request, next *Next) IntoResponse {
			resp := next.Run(r)
			if c := tg(); c != nil {
				resp.Header.Add("Set-Cookie", c.String())
			}
			return resp
		}))
}

// DisallowLongerPaths sends requests whose path is not exactly path to notFound.
func DisallowLongerPaths(path string, notFound Service) Layer[NoState] {
	return FromFn(Func2(URI[none](), Request[none](),
		func(_ context.Context, u *url.URL, r *http.Request, next *Next) IntoResponse {
			if u.Path != path {
				logger.Info().Str("expected", path).Str("path", u.Path).Msg("path not handled")
				return notFound.Call(r).Wait()
			}
			return next.Run(r)
		}))
}

// NotFound is a Service answering every request with a 404.
func NotFound() Service {
	return ServiceFunc(func(*http.Request) *Response {
		return Status(http.StatusNotFound).IntoResponse()
	})
}

// HTTPSRedirect redirects every request to its HTTPS equivalent.
// Most users should simply call this as `http.ListenAndServe(":80", adaptfn.Serve(adaptfn.HTTPSRedirect()))`
func HTTPSRedirect() Service {
	return ServiceFunc(func(r *http.Request) *Response {
		return redirectToHTTPS(r)
	})
}

// EnsureHTTPS redirects plain HTTP requests to HTTPS.
// Some hosts forward requests and use 'X-Forwarded-Proto == "https"'
// to indicate that the request was made with https protocol.
// If you would like to allow this as a valid check, then the parameter should be true.
func EnsureHTTPS(allowXForwardedProto bool) Layer[NoState] {
	return FromFn(Func1(Request[none](),
		func(_ context.Context, r *http.Request, next *Next) IntoResponse {
			if !isHTTPS(r, allowXForwardedProto) {
				return redirectToHTTPS(r)
			}
			return next.Run(r)
		}))
}

func redirectToHTTPS(r *http.Request) *Response {
	target := "https://" + r.Host + r.URL.Path
	if len(r.URL.RawQuery) > 0 {
		target += "?" + r.URL.RawQuery
	}
	logger.Info().Str("target", target).Msg("redirect")
	return Redirect(target, http.StatusTemporaryRedirect)
}

func isHTTPS(r *http.Request, allowXForwardedProto bool) bool {
	return (r.TLS != nil && r.TLS.HandshakeComplete) || (allowXForwardedProto && r.Header.Get("X-Forwarded-Proto") == "https")
}

// OnCheck passes requests for which f returns true on and sends the others to
// falseService.
func OnCheck(f func(*http.Request) bool, falseService Service, logOnFalse string) Layer[NoState] {
	return FromFn(Func1(Request[none](),
		func(_ context.Context, r *http.Request, next *Next) IntoResponse {
			if !f(r) {
				logger.Info().Str("path", r.URL.Path).Msg(logOnFalse)
				return falseService.Call(r).Wait()
			}
			return next.Run(r)
		}))
}

// CheckAndRedirect is OnCheck with a redirect service for failed checks.
func CheckAndRedirect(f func(*http.Request) bool, redirect Service, logOnRedirect string) Layer[NoState] {
	return OnCheck(f, redirect, logOnRedirect+" redirecting")
}

type requestIDKey struct{}

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-Id"

// RequestID makes sure every request has an ID. An incoming X-Request-Id is
// kept, otherwise a new UUID is generated. The ID is echoed on the response.
func RequestID() Layer[NoState] {
	return FromFn(Func2(OptionalHeader[none](RequestIDHeader), Request[none](),
		func(ctx context.Context, id string, r *http.Request, next *Next) IntoResponse {
			if id == "" {
				id = uuid.New().String()
				r.Header.Set(RequestIDHeader, id)
			}
			resp := next.Run(r.WithContext(context.WithValue(ctx, requestIDKey{}, id)))
			resp.Header.Set(RequestIDHeader, id)
			return resp
		}))
}

// RequestIDFromContext returns the ID set by RequestID.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
