package adaptfn

import (
	"context"
	"runtime/debug"
)

// Future is the pending result of a single Service call. It always resolves to
// a response; there is no error outcome.
type Future struct {
	done   chan struct{}
	resp   *Response
	panic  any
	stack  []byte
	cancel context.CancelFunc
}

// Spawn runs fn on its own goroutine. The context handed to fn is derived from
// ctx and is canceled by Cancel or once fn returns.
func Spawn(ctx context.Context, fn func(context.Context) *Response) *Future {
	ctx, cancel := context.WithCancel(ctx)
	f := &Future{done: make(chan struct{}), cancel: cancel}
	go func() {
		defer close(f.done)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				f.panic = p
				f.stack = debug.Stack()
			}
		}()
		f.resp = ToResponse(fn(ctx))
	}()
	return f
}

// Completed returns a future that is already resolved to resp.
func Completed(resp *Response) *Future {
	f := &Future{done: make(chan struct{}), resp: ToResponse(resp), cancel: func() {}}
	close(f.done)
	return f
}

// Done is closed once the response is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Cancel aborts the computation. Work already done is not rolled back.
func (f *Future) Cancel() { f.cancel() }

// Wait blocks until the response is available. A panic raised while computing
// the response is logged with its original stack and re-raised on the calling
// goroutine.
func (f *Future) Wait() *Response {
	<-f.done
	if f.panic != nil {
		logger.Error().
			Interface("panic", f.panic).
			Bytes("stack", f.stack).
			Msg("panic while computing response")
		panic(f.panic)
	}
	return f.resp
}

// Await is Wait bounded by ctx. If ctx ends first the computation is canceled
// and ctx's error is returned.
func (f *Future) Await(ctx context.Context) (*Response, error) {
	select {
	case <-f.done:
		return f.Wait(), nil
	case <-ctx.Done():
		f.cancel()
		return nil, ctx.Err()
	}
}
