package pprofserver_test

import (
	"context"
	"github.com/myrjola/talespin/internal/pprofserver"
	"github.com/myrjola/talespin/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandle(t *testing.T) {
	mux := http.NewServeMux()
	pprofserver.Handle(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLaunch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addr, err := pprofserver.Launch(ctx, "127.0.0.1:0", testhelpers.NewLogger(io.Discard))
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/debug/pprof/cmdline")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr.String() + "/debug/pprof/cmdline")
		if err == nil {
			_ = resp.Body.Close()
		}
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestLaunchRejectsBusyAddress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := testhelpers.NewLogger(io.Discard)
	addr, err := pprofserver.Launch(ctx, "127.0.0.1:0", logger)
	require.NoError(t, err)

	_, err = pprofserver.Launch(ctx, addr.String(), logger)
	require.Error(t, err)
}
