// Package pprofserver exposes runtime profiles of a running player for troubleshooting long sessions.
package pprofserver

import (
	"context"
	"github.com/myrjola/talespin/internal/errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"
)

const shutdownTimeout = 5 * time.Second

func Handle(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
}

func newServer() *http.Server {
	mux := http.NewServeMux()
	Handle(mux)
	return &http.Server{ //nolint:exhaustruct // defaults are fine for a loopback debug server
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}
}

// Launch serves pprof on addr until ctx is done and returns the address it listens on.
//
// Use a loopback address such as localhost:6060, or port 0 to pick a free one.
func Launch(ctx context.Context, addr string, logger *slog.Logger) (net.Addr, error) {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen", slog.String("addr", addr))
	}
	server := newServer()
	logger = logger.With("source", "pprofserver")
	logger.LogAttrs(ctx, slog.LevelInfo, "starting pprof server", slog.String("addr", listener.Addr().String()))

	go func() {
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.LogAttrs(ctx, slog.LevelError, "pprof server failed", errors.SlogError(serveErr))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.LogAttrs(shutdownCtx, slog.LevelWarn, "pprof server shutdown", errors.SlogError(shutdownErr))
		}
	}()
	return listener.Addr(), nil
}
