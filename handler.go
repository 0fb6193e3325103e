package adaptfn

import (
	"context"
	"net/http"
	"reflect"
	"runtime"
	"strings"
)

// Handler is a middleware function together with the extractors that feed it,
// with the argument types erased. Build one with Func1 through Func8.
type Handler[S any] struct {
	name  string
	heads []erasedHead[S]
	body  erasedBody[S]
	call  func(ctx context.Context, args []any, next *Next) IntoResponse
}

// Name is the name of the wrapped function.
func (h Handler[S]) Name() string { return h.name }

// serve runs the extractor chain against r and then the function. The first
// rejection ends the request; inner is only reachable through the Next handed
// to the function.
func (h Handler[S]) serve(r *http.Request, state *S, inner Service) *Response {
	parts, body := SplitRequest(r)
	args := make([]any, 0, len(h.heads)+1)
	for i, extract := range h.heads {
		v, err := extract(parts.Context(), parts, state)
		if err != nil {
			return h.reject(r, i, err)
		}
		args = append(args, v)
	}

	req := parts.Join(body)
	v, err := h.body(req.Context(), req, state)
	if err != nil {
		return h.reject(r, len(h.heads), err)
	}
	args = append(args, v)

	return ToResponse(h.call(req.Context(), args, newNext(inner)))
}

func (h Handler[S]) reject(r *http.Request, pos int, err error) *Response {
	resp := RejectionResponse(err)
	logger.Debug().
		Err(err).
		Str("middleware", h.name).
		Int("extractor", pos).
		Int("status", resp.StatusCode).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("request rejected")
	return resp
}

func funcName(fn any) string {
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Func1 builds a Handler from a body extractor and a function.
func Func1[S, T1 any](e1 BodyExtractor[S, T1], fn func(context.Context, T1, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: nil,
		body:  eraseBody(e1),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), next)
		},
	}
}

// Func2 builds a Handler from one head extractor, a body extractor and a
// function. Extractors run in argument order.
func Func2[S, T1, T2 any](e1 HeadExtractor[S, T1], e2 BodyExtractor[S, T2], fn func(context.Context, T1, T2, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: []erasedHead[S]{eraseHead(e1)},
		body:  eraseBody(e2),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), arg[T2](a[1]), next)
		},
	}
}

// Func3 is Func2 with 2 head extractors.
func Func3[S, T1, T2, T3 any](e1 HeadExtractor[S, T1], e2 HeadExtractor[S, T2], e3 BodyExtractor[S, T3], fn func(context.Context, T1, T2, T3, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: []erasedHead[S]{eraseHead(e1), eraseHead(e2)},
		body:  eraseBody(e3),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), arg[T2](a[1]), arg[T3](a[2]), next)
		},
	}
}

// Func4 is Func2 with 3 head extractors.
func Func4[S, T1, T2, T3, T4 any](e1 HeadExtractor[S, T1], e2 HeadExtractor[S, T2], e3 HeadExtractor[S, T3], e4 BodyExtractor[S, T4], fn func(context.Context, T1, T2, T3, T4, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: []erasedHead[S]{eraseHead(e1), eraseHead(e2), eraseHead(e3)},
		body:  eraseBody(e4),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), arg[T2](a[1]), arg[T3](a[2]), arg[T4](a[3]), next)
		},
	}
}

// Func5 is Func2 with 4 head extractors.
func Func5[S, T1, T2, T3, T4, T5 any](e1 HeadExtractor[S, T1], e2 HeadExtractor[S, T2], e3 HeadExtractor[S, T3], e4 HeadExtractor[S, T4], e5 BodyExtractor[S, T5], fn func(context.Context, T1, T2, T3, T4, T5, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: []erasedHead[S]{eraseHead(e1), eraseHead(e2), eraseHead(e3), eraseHead(e4)},
		body:  eraseBody(e5),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), arg[T2](a[1]), arg[T3](a[2]), arg[T4](a[3]), arg[T5](a[4]), next)
		},
	}
}

// Func6 is Func2 with 5 head extractors.
func Func6[S, T1, T2, T3, T4, T5, T6 any](e1 HeadExtractor[S, T1], e2 HeadExtractor[S, T2], e3 HeadExtractor[S, T3], e4 HeadExtractor[S, T4], e5 HeadExtractor[S, T5], e6 BodyExtractor[S, T6], fn func(context.Context, T1, T2, T3, T4, T5, T6, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: []erasedHead[S]{eraseHead(e1), eraseHead(e2), eraseHead(e3), eraseHead(e4), eraseHead(e5)},
		body:  eraseBody(e6),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), arg[T2](a[1]), arg[T3](a[2]), arg[T4](a[3]), arg[T5](a[4]), arg[T6](a[5]), next)
		},
	}
}

// Func7 is Func2 with 6 head extractors.
func Func7[S, T1, T2, T3, T4, T5, T6, T7 any](e1 HeadExtractor[S, T1], e2 HeadExtractor[S, T2], e3 HeadExtractor[S, T3], e4 HeadExtractor[S, T4], e5 HeadExtractor[S, T5], e6 HeadExtractor[S, T6], e7 BodyExtractor[S, T7], fn func(context.Context, T1, T2, T3, T4, T5, T6, T7, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: []erasedHead[S]{eraseHead(e1), eraseHead(e2), eraseHead(e3), eraseHead(e4), eraseHead(e5), eraseHead(e6)},
		body:  eraseBody(e7),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), arg[T2](a[1]), arg[T3](a[2]), arg[T4](a[3]), arg[T5](a[4]), arg[T6](a[5]), arg[T7](a[6]), next)
		},
	}
}

// Func8 is Func2 with 7 head extractors.
func Func8[S, T1, T2, T3, T4, T5, T6, T7, T8 any](e1 HeadExtractor[S, T1], e2 HeadExtractor[S, T2], e3 HeadExtractor[S, T3], e4 HeadExtractor[S, T4], e5 HeadExtractor[S, T5], e6 HeadExtractor[S, T6], e7 HeadExtractor[S, T7], e8 BodyExtractor[S, T8], fn func(context.Context, T1, T2, T3, T4, T5, T6, T7, T8, *Next) IntoResponse) Handler[S] {
	return Handler[S]{
		name:  funcName(fn),
		heads: []erasedHead[S]{eraseHead(e1), eraseHead(e2), eraseHead(e3), eraseHead(e4), eraseHead(e5), eraseHead(e6), eraseHead(e7)},
		body:  eraseBody(e8),
		call: func(ctx context.Context, a []any, next *Next) IntoResponse {
			return fn(ctx, arg[T1](a[0]), arg[T2](a[1]), arg[T3](a[2]), arg[T4](a[3]), arg[T5](a[4]), arg[T6](a[5]), arg[T7](a[6]), arg[T8](a[7]), next)
		},
	}
}
