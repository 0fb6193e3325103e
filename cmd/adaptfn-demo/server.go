package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dadamssolutions/adaptfn"
)

type tokenKey struct{}

type echoResponse struct {
	RequestID string     `json:"request_id"`
	Token     string     `json:"token"`
	Query     url.Values `json:"query"`
	Body      string     `json:"body"`
}

// guard requires the configured header and hands its value and the parsed
// query to the handler.
func guard(header string) adaptfn.Layer[adaptfn.NoState] {
	type st = adaptfn.NoState
	return adaptfn.FromFn(adaptfn.Func3(adaptfn.Header[st](header), adaptfn.Query[st](), adaptfn.Request[st](),
		func(ctx context.Context, token string, q url.Values, r *http.Request, next *adaptfn.Next) adaptfn.IntoResponse {
			r = r.WithContext(context.WithValue(ctx, tokenKey{}, echoResponse{Token: token, Query: q}))
			return next.Run(r)
		}))
}

func echo(w http.ResponseWriter, r *http.Request) {
	out, _ := r.Context().Value(tokenKey{}).(echoResponse)
	out.RequestID, _ = adaptfn.RequestIDFromContext(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "reading body", http.StatusBadRequest)
		return
	}
	out.Body = string(body)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func newRouter(cfg Config, log zerolog.Logger, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(adaptfn.RequestID().Adapter(), adaptfn.Notify(log).Adapter())
	if cfg.Metrics {
		r.Use(adaptfn.CountHTTPResponses(reg).Adapter(), adaptfn.TrackHTTPResponseTimes(reg).Adapter())
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.With(guard(cfg.RequireHeader).Adapter()).Post("/echo", echo)
	return r
}
