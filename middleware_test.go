package adaptfn

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// handleService is a Service that records every request it handles along
// with the handle that served it.
type handleService struct {
	id     int64
	clones *atomic.Int64
	mu     *sync.Mutex
	seen   *[]int64
	reqs   *[]*http.Request
	status int
}

func newHandleService() *handleService {
	return &handleService{
		clones: &atomic.Int64{},
		mu:     &sync.Mutex{},
		seen:   &[]int64{},
		reqs:   &[]*http.Request{},
		status: http.StatusOK,
	}
}

func (s *handleService) Ready(context.Context) error { return nil }

func (s *handleService) Call(r *http.Request) *Future {
	s.mu.Lock()
	*s.seen = append(*s.seen, s.id)
	*s.reqs = append(*s.reqs, r)
	s.mu.Unlock()
	resp := NewResponse(s.status, []byte("inner:"+r.Header.Get("X-Token")))
	return Completed(resp)
}

func (s *handleService) Clone() Service {
	c := *s
	c.id = s.clones.Add(1)
	return &c
}

func (s *handleService) calls() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), *s.seen...)
}

func (s *handleService) requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), *s.reqs...)
}

func forwardBody(ctx context.Context, body []byte, token string, next *Next) *Response {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(string(body))).WithContext(ctx)
	r.Header.Set("X-Token", token)
	return next.Run(r)
}

func TestFromFnHeaderQueryBody(t *testing.T) {
	inner := newHandleService()
	var (
		gotToken string
		gotQuery url.Values
		gotBody  []byte
	)
	layer := FromFn(Func3(Header[NoState]("X-Token"), Query[NoState](), Body[NoState](),
		func(ctx context.Context, token string, q url.Values, body []byte, next *Next) IntoResponse {
			gotToken, gotQuery, gotBody = token, q, body
			return forwardBody(ctx, body, token, next)
		}))
	m := layer.Attach(inner)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
	req.Header.Set("X-Token", "abc")
	resp := m.Call(req).Wait()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "inner:abc", string(resp.Body))
	require.Equal(t, "abc", gotToken)
	require.NotNil(t, gotQuery)
	require.Empty(t, gotQuery)
	require.Equal(t, []byte("hello"), gotBody)
	require.Len(t, inner.calls(), 1)
}

func TestFromFnMissingHeaderShortCircuits(t *testing.T) {
	inner := newHandleService()
	var bodyRan, fnRan bool
	body := func(context.Context, *http.Request, *NoState) ([]byte, error) {
		bodyRan = true
		return nil, nil
	}
	layer := FromFn(Func3(Header[NoState]("X-Token"), Query[NoState](), body,
		func(context.Context, string, url.Values, []byte, *Next) IntoResponse {
			fnRan = true
			return nil
		}))

	resp := layer.Attach(inner).Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.JSONEq(t, `{"error":{"code":"missing_header","message":"Missing request header \"X-Token\""}}`, string(resp.Body))
	require.False(t, bodyRan)
	require.False(t, fnRan)
	require.Empty(t, inner.calls())
}

func TestExtractorsRunInOrderAndStopAtFirstRejection(t *testing.T) {
	var order []string
	step := func(name string, fail bool) HeadExtractor[NoState, string] {
		return func(context.Context, *Parts, *NoState) (string, error) {
			order = append(order, name)
			if fail {
				return "", Reject(http.StatusForbidden, "no", "%s failed", name)
			}
			return name, nil
		}
	}
	body := func(context.Context, *http.Request, *NoState) (string, error) {
		order = append(order, "body")
		return "body", nil
	}
	fn := func(_ context.Context, a, b, c, d string, _ *Next) IntoResponse {
		order = append(order, "fn:"+a+b+c+d)
		return Status(http.StatusNoContent)
	}

	resp := FromFn(Func4(step("e1", false), step("e2", true), step("e3", false), body, fn)).
		Attach(newHandleService()).
		Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, []string{"e1", "e2"}, order)

	order = nil
	resp = FromFn(Func4(step("e1", false), step("e2", false), step("e3", false), body, fn)).
		Attach(newHandleService()).
		Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, []string{"e1", "e2", "e3", "body", "fn:e1e2e3body"}, order)
}

func TestBodyRejectionAfterHeadExtractors(t *testing.T) {
	inner := newHandleService()
	var fnRan bool
	layer := FromFn(Func3(Header[NoState]("X-Token"), Query[NoState](), JSON[NoState, map[string]any](),
		func(context.Context, string, url.Values, map[string]any, *Next) IntoResponse {
			fnRan = true
			return nil
		}))

	req := httptest.NewRequest(http.MethodPost, "/?a=1", strings.NewReader(`{"a":1}`))
	req.Header.Set("X-Token", "abc")
	req.Header.Set("Content-Type", "text/plain")
	resp := layer.Attach(inner).Call(req).Wait()

	require.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	require.Contains(t, string(resp.Body), "unsupported_media_type")
	require.False(t, fnRan)
	require.Empty(t, inner.calls())
}

func TestBodyExtractorOnly(t *testing.T) {
	inner := newHandleService()
	m := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		return next.Run(r)
	})).Attach(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Token", "t")
	resp := m.Call(req).Wait()

	require.Equal(t, "inner:t", string(resp.Body))
	require.Len(t, inner.calls(), 1)
}

func TestNextForwardsTheGivenRequest(t *testing.T) {
	inner := newHandleService()
	var forwarded *http.Request
	m := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		r.Header.Set("X-Token", "edited")
		forwarded = r
		return next.Run(r)
	})).Attach(inner)

	resp := m.Call(httptest.NewRequest(http.MethodGet, "/path?q=1", nil)).Wait()

	require.Equal(t, "inner:edited", string(resp.Body))
	reqs := inner.requests()
	require.Len(t, reqs, 1)
	require.Same(t, forwarded, reqs[0])
	require.Equal(t, "/path", reqs[0].URL.Path)
}

func TestNextNormalizesInnerResponse(t *testing.T) {
	inner := ServiceFunc(func(*http.Request) *Response { return &Response{} })
	m := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		resp := next.Run(r)
		assert.NotNil(t, resp.Header)
		return resp
	})).Attach(inner)

	resp := m.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNextNotRunShortCircuits(t *testing.T) {
	inner := newHandleService()
	m := FromFn(Func1(Request[NoState](), func(context.Context, *http.Request, *Next) IntoResponse {
		return Status(http.StatusUnauthorized)
	})).Attach(inner)

	resp := m.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Empty(t, inner.calls())
}

func TestNextRunTwicePanics(t *testing.T) {
	m := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		next.Run(r)
		return next.Run(r)
	})).Attach(newHandleService())

	require.PanicsWithValue(t, "adaptfn: Next used more than once", func() {
		m.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	})
}

func TestNextStart(t *testing.T) {
	inner := newHandleService()
	m := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		f := next.Start(r)
		resp, err := f.Await(r.Context())
		if err != nil {
			return Status(http.StatusGatewayTimeout)
		}
		return resp
	})).Attach(inner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Token", "started")
	resp := m.Call(req).Wait()

	require.Equal(t, "inner:started", string(resp.Body))
	require.Len(t, inner.calls(), 1)
}

func TestNilResultIsEmptyOK(t *testing.T) {
	m := FromFn(Func1(Request[NoState](), func(context.Context, *http.Request, *Next) IntoResponse {
		return nil
	})).Attach(newHandleService())

	resp := m.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, resp.Body)
}

func TestEveryCallGetsItsOwnHandle(t *testing.T) {
	inner := newHandleService()
	m := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		return next.Run(r)
	})).Attach(inner)

	for i := 0; i < 3; i++ {
		m.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	}

	require.Equal(t, []int64{0, 1, 2}, inner.calls())
}

func TestHandleSwapHappensOnRejection(t *testing.T) {
	inner := newHandleService()
	m := FromFn(Func2(Header[NoState]("X-Token"), Request[NoState](), func(_ context.Context, _ string, r *http.Request, next *Next) IntoResponse {
		return next.Run(r)
	})).Attach(inner)

	resp := m.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, int64(1), inner.clones.Load())
	require.Empty(t, inner.calls())
}

func TestConcurrentCallsDoNotInterfere(t *testing.T) {
	inner := newHandleService()
	release := make(chan struct{})
	slow := func(ctx context.Context, p *Parts, _ *NoState) (string, error) {
		v := p.Header.Get("X-Token")
		if v == "slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return v, nil
	}
	m := FromFn(Func2(slow, Request[NoState](), func(_ context.Context, token string, r *http.Request, next *Next) IntoResponse {
		resp := next.Run(r)
		resp.Header.Set("X-Extracted", token)
		return resp
	})).Attach(inner)

	reqA := httptest.NewRequest(http.MethodGet, "/", nil)
	reqA.Header.Set("X-Token", "slow")
	reqB := httptest.NewRequest(http.MethodGet, "/", nil)
	reqB.Header.Set("X-Token", "fast")

	futA := m.Call(reqA)
	futB := m.Call(reqB)

	select {
	case <-futB.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("fast request did not complete")
	}
	select {
	case <-futA.Done():
		t.Fatal("slow request completed before it was released")
	default:
	}

	close(release)
	respA, respB := futA.Wait(), futB.Wait()

	assert.Equal(t, "slow", respA.Header.Get("X-Extracted"))
	assert.Equal(t, "fast", respB.Header.Get("X-Extracted"))
	assert.Equal(t, "inner:slow", string(respA.Body))
	assert.Equal(t, "inner:fast", string(respB.Body))
	assert.ElementsMatch(t, []int64{0, 1}, inner.calls())
}

func TestCancelStopsExtraction(t *testing.T) {
	inner := newHandleService()
	started := make(chan struct{})
	wait := func(ctx context.Context, _ *Parts, _ *NoState) (string, error) {
		close(started)
		<-ctx.Done()
		return "", Reject(http.StatusServiceUnavailable, "canceled", "canceled").WithCause(ctx.Err())
	}
	m := FromFn(Func2(wait, Request[NoState](), func(_ context.Context, _ string, r *http.Request, next *Next) IntoResponse {
		return next.Run(r)
	})).Attach(inner)

	f := m.Call(httptest.NewRequest(http.MethodGet, "/", nil))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.Equal(t, http.StatusServiceUnavailable, f.Wait().StatusCode)
	require.Empty(t, inner.calls())
}

type blockedService struct {
	ServiceFunc
}

func (blockedService) Ready(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestReadyDelegatesToInner(t *testing.T) {
	layer := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		return next.Run(r)
	}))

	require.NoError(t, layer.Attach(newHandleService()).Ready(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := layer.Attach(blockedService{}).Ready(ctx)
	require.True(t, errors.Is(err, context.Canceled))
}

type counter struct {
	name string
}

func TestStateIsSharedAcrossAttachments(t *testing.T) {
	st := &counter{name: "shared"}
	var seen []*counter
	var mu sync.Mutex
	layer := FromFnWithSharedState(st, Func2(State[counter](), Request[counter](),
		func(_ context.Context, s *counter, r *http.Request, next *Next) IntoResponse {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
			return Text(s.name)
		}))

	a, b := layer.Attach(newHandleService()), layer.Attach(newHandleService())
	require.Equal(t, "shared", string(a.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait().Body))
	require.Equal(t, "shared", string(b.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait().Body))
	require.Len(t, seen, 2)
	require.Same(t, st, seen[0])
	require.Same(t, st, seen[1])
}

func TestFromFnWithStateCopiesValue(t *testing.T) {
	c := counter{name: "before"}
	layer := FromFnWithState(c, Func1(Whole(State[counter]()),
		func(_ context.Context, s *counter, _ *Next) IntoResponse {
			return Text(s.name)
		}))
	c.name = "after"

	resp := layer.Attach(newHandleService()).Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, "before", string(resp.Body))
}

func TestHeadExtractorContextReachesRequest(t *testing.T) {
	type key struct{}
	tag := func(_ context.Context, p *Parts, _ *NoState) (string, error) {
		p.WithValue(key{}, "tagged")
		return "", nil
	}
	m := FromFn(Func2(tag, Request[NoState](), func(ctx context.Context, _ string, r *http.Request, _ *Next) IntoResponse {
		assert.Equal(t, "tagged", ctx.Value(key{}))
		return Text(r.Context().Value(key{}).(string))
	})).Attach(newHandleService())

	resp := m.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, "tagged", string(resp.Body))
}

func TestMiddlewareClone(t *testing.T) {
	inner := newHandleService()
	m := FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
		return next.Run(r)
	})).Attach(inner)

	c := m.Clone()
	require.NotSame(t, m, c)
	c.Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()
	require.Equal(t, []int64{1}, inner.calls())
}

func TestLayerAsAdapter(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello "+r.Header.Get("X-Token"))
	})
	auth := FromFn(Func2(Header[NoState]("X-Token"), Request[NoState](),
		func(_ context.Context, _ string, r *http.Request, next *Next) IntoResponse {
			return next.Run(r)
		}))

	ts := httptest.NewServer(Adapt(handler, auth.Adapter(), AddHeader("X-Frame-Options", "DENY").Adapter()))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Token", "abc")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hello abc", string(body))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))

	resp, err = ts.Client().Get(ts.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestComposeOrder(t *testing.T) {
	var calls []string
	mark := func(name string) ServiceLayer {
		return FromFn(Func1(Request[NoState](), func(_ context.Context, r *http.Request, next *Next) IntoResponse {
			calls = append(calls, name)
			return next.Run(r)
		}))
	}
	inner := ServiceFunc(func(*http.Request) *Response {
		calls = append(calls, "h0")
		return nil
	})

	Compose(inner, mark("m1"), mark("m2"), mark("m3")).Call(httptest.NewRequest(http.MethodGet, "/", nil)).Wait()

	require.Equal(t, []string{"m1", "m2", "m3", "h0"}, calls)
}

func TestLayerString(t *testing.T) {
	require.Contains(t, RequestMethod(http.MethodGet).String(), "RequestMethod")
}
