package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"jeev/pkg/config"
	"jeev/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeStatus struct {
	ready bool
}

func (f fakeStatus) Status() Status {
	return Status{Adapter: "console", AdapterUp: f.ready, Units: []string{"ping"}}
}

func (f fakeStatus) Ready() bool {
	return f.ready
}

func newTestServer(status StatusSource) *Server {
	handlers := func(name string) http.Handler {
		if name != "webstore" {
			return nil
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "path="+r.URL.Path)
		})
	}
	return NewServer(config.WebConfig{Host: "127.0.0.1", Port: 0}, handlers, status, logger.Discard())
}

func TestHealthAndReady(t *testing.T) {
	server := newTestServer(fakeStatus{ready: false})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, []string{"ping"}, body.Units)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "not_ready", body.Status)

	server = newTestServer(fakeStatus{ready: true})
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnitRoutesStripPrefix(t *testing.T) {
	server := newTestServer(nil)
	handler := server.Handler()

	cases := map[string]string{
		"/webstore/items/1": "path=/items/1",
		"/webstore/":        "path=/",
		"/webstore":         "path=/",
	}
	for target, want := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", target, rec.Code)
		}
		if got := rec.Body.String(); got != want {
			t.Fatalf("%s: body = %q, want %q", target, got, want)
		}
	}
}

func TestUnknownUnitIsNotFound(t *testing.T) {
	handler := newTestServer(nil).Handler()

	for _, target := range []string{"/missing/x", "/missing", "/"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d, want 404", target, rec.Code)
		}
	}
}

func TestStartServesAndShutsDown(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newTestServer(fakeStatus{ready: true})
	require.NoError(t, server.Start(ctx))
	require.Error(t, server.Start(ctx))

	resp, err := http.Get("http://" + server.Addr() + "/webstore/ok")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	require.Equal(t, "path=/ok", string(body))

	http.DefaultClient.CloseIdleConnections()
	require.NoError(t, server.Shutdown())
	require.Error(t, server.Shutdown())
	require.Empty(t, server.Addr())
}
