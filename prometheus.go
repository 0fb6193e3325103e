package adaptfn

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func registerer(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.DefaultRegisterer
	}
	return reg
}

// CountHTTPResponses counts responses in a prometheus counter with labels
// endpoint, code, and method. The counter is registered with reg, or the
// default registerer if reg is nil.
// This should be applied once for an entire web server.
func CountHTTPResponses(reg prometheus.Registerer) Layer[NoState] {
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "How many HTTP requests processed, partitioned by endpoint, status code, and HTTP method.",
		},
		[]string{"endpoint", "code", "method"},
	)
	registerer(reg).MustRegister(httpRequests)
	return FromFn(Func3(Method[none](), URI[none](), Request[none](),
		func(_ context.Context, method string, u *url.URL, r *http.Request, next *Next) IntoResponse {
			resp := next.Run(r)
			httpRequests.WithLabelValues(u.Path, strconv.Itoa(resp.StatusCode), method).Inc()
			return resp
		}))
}

// TrackHTTPResponseTimes records response times in seconds as a prometheus
// summary with labels endpoint, code, and method.
// This should be applied once for an entire web server.
func TrackHTTPResponseTimes(reg prometheus.Registerer) Layer[NoState] {
	httpRequests := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "http_requests_secs",
			Help: "The response times to HTTP requests, partitioned by endpoint, status code, and HTTP method.",
		},
		[]string{"endpoint", "code", "method"},
	)
	registerer(reg).MustRegister(httpRequests)
	return FromFn(Func3(Method[none](), URI[none](), Request[none](),
		func(_ context.Context, method string, u *url.URL, r *http.Request, next *Next) IntoResponse {
			start := time.Now()
			resp := next.Run(r)
			httpRequests.WithLabelValues(u.Path, strconv.Itoa(resp.StatusCode), method).Observe(time.Since(start).Seconds())
			return resp
		}))
}
