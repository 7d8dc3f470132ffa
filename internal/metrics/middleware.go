package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware records one sample per request. The endpoint is the chi route
// pattern when one matched, so "/api/journal/{id}" is a single endpoint.
// A panicking handler still leaves a 500 sample before the panic moves on.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			status := ww.Status()
			rec := recover()
			switch {
			case rec != nil:
				// Counted as a server error; the recoverer further out answers
				status = http.StatusInternalServerError
			case status == 0:
				status = http.StatusOK
			}

			s.Record(endpointFor(r), time.Since(start), status)

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

func endpointFor(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
