package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds the time given to open requests once the
// servers are asked to stop.
const DefaultShutdownTimeout = 10 * time.Second

// ListenAndServe runs the servers until ctx is done, then shuts them down
// within DefaultShutdownTimeout. A server that fails to start stops the
// others.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range servers {
		s := s
		g.Go(func() error {
			logs.WithTag("addr", s.Addr).Info("listening")

			err := s.ListenAndServe()
			if err == nil || err == http.ErrServerClosed {
				logs.WithTag("addr", s.Addr).Info("server closed")
				return nil
			}
			return errors.New("serving failed").
				WithTag("addr", s.Addr).
				Wrap(err)
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.New("server shutdown failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logs.Warn(err)
	}
}

// MetricsPathFormatter returns the path label of an HTTP request metric.
// Redirects and client errors other than 429 get an empty label. Profiling
// endpoints share one label.
func MetricsPathFormatter(statusCode int, path string) string {
	switch {
	case statusCode == http.StatusMovedPermanently,
		statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError &&
			statusCode != http.StatusTooManyRequests:
		return ""

	case strings.HasPrefix(path, "/debug/pprof"):
		return "/debug/pprof"

	default:
		return path
	}
}
