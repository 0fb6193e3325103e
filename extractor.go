package adaptfn

import (
	"context"
	"net/http"
)

// HeadExtractor builds a T from the request head alone. It runs before the
// body is touched and may modify the head for the extractors after it.
type HeadExtractor[S, T any] func(ctx context.Context, p *Parts, state *S) (T, error)

// BodyExtractor builds a T from the full request and may consume its body.
// A middleware has exactly one, and it always runs last.
type BodyExtractor[S, T any] func(ctx context.Context, r *http.Request, state *S) (T, error)

// Whole runs a head extractor in the body position, leaving the body untouched.
func Whole[S, T any](e HeadExtractor[S, T]) BodyExtractor[S, T] {
	return func(ctx context.Context, r *http.Request, state *S) (T, error) {
		p, _ := SplitRequest(r)
		return e(ctx, p, state)
	}
}

type erasedHead[S any] func(context.Context, *Parts, *S) (any, error)

type erasedBody[S any] func(context.Context, *http.Request, *S) (any, error)

func eraseHead[S, T any](e HeadExtractor[S, T]) erasedHead[S] {
	return func(ctx context.Context, p *Parts, state *S) (any, error) {
		return e(ctx, p, state)
	}
}

func eraseBody[S, T any](e BodyExtractor[S, T]) erasedBody[S] {
	return func(ctx context.Context, r *http.Request, state *S) (any, error) {
		return e(ctx, r, state)
	}
}

// arg recovers a typed value from the erased argument list. A nil interface
// value becomes T's zero value.
func arg[T any](v any) T {
	t, _ := v.(T)
	return t
}
