// SPDX-License-Identifier: MIT

package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/kempy-elevator/fabric/internal/controlblock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux builds the debug HTTP surface: Prometheus scraping at /metrics
// and a liveness probe at /healthz that reports whether block is still
// attachable. Both are rate-limited per client IP to keep an accidental
// scrape storm from competing with the car's own goroutines.
func NewMux(block *controlblock.Block) http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(30, time.Minute))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if _, err := block.Snapshot(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// NewBareMux builds the same debug surface as NewMux for processes with
// no control block to probe, such as the controller: /healthz just
// reports that the process is up and accepting connections.
func NewBareMux() http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(30, time.Minute))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// Serve runs an HTTP server on ln with mux until ctx is cancelled,
// shutting down gracefully rather than killing in-flight scrapes.
func Serve(ctx context.Context, ln net.Listener, mux http.Handler) error {
	srv := &http.Server{Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
