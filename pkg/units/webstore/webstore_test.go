package webstore

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"jeev/pkg/unit/unittest"

	"github.com/stretchr/testify/require"
)

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSetAndServe(t *testing.T) {
	h := unittest.New(t, nil, Unit)
	u := h.Load("webstore", map[string]any{"notify_channel": "ops"})
	handler := u.HTTPHandler()
	require.NotNil(t, handler)

	rec := get(t, handler, "/motd")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "A value for key: motd was not found")

	h.Say("general", "jake", "jeev: set motd to hello world", true)
	h.Say("general", "jake", "set ignored to nothing", false)
	require.Equal(t, []string{"jake: Done. I set motd to hello world"}, h.Host.Texts())

	rec = get(t, handler, "/motd")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello world", rec.Body.String())

	rec = get(t, handler, "/ignored")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, handler, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "I am the unit webstore.")

	sent := h.Host.Sent()
	require.Equal(t, "ops", sent[len(sent)-1].Channel)
	require.Equal(t, "i got a request", sent[len(sent)-1].Text)
}

func TestWhatIs(t *testing.T) {
	h := unittest.New(t, nil, Unit)
	h.Load("webstore", nil)

	h.Say("general", "jake", "jeev: what is motd?", true)
	h.Say("general", "jake", "jeev: set motd to hi", true)
	h.Say("general", "finn", "jeev: what is motd", true)

	require.Equal(t, []string{
		"jake: I don't know what motd is",
		"jake: Done. I set motd to hi",
		"finn: motd is hi",
	}, h.Host.Texts())
}

func TestValuesSurviveReload(t *testing.T) {
	h := unittest.New(t, nil, Unit)
	h.Load("webstore", nil)
	h.Say("general", "jake", "jeev: set color to blue", true)

	u, err := h.Registry.Reload(t.Context(), "webstore", nil)
	require.NoError(t, err)

	rec := get(t, u.HTTPHandler(), "/color")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "blue", rec.Body.String())
}
