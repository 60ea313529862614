package debugserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/chatxp/internal/metrics"
	"github.com/whisper/chatxp/internal/session"
)

type fixedState session.State

func (s fixedState) State() session.State { return session.State(s) }

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestHandler(t *testing.T) {
	st := session.Initial()
	st.Screen = session.ScreenChat
	st.RoomID = "r1"
	st.PartnerUsername = "bob"
	srv := httptest.NewServer(NewHandler(fixedState(st)))
	defer srv.Close()

	resp, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	resp, body = get(t, srv, "/state")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var got session.State
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, session.ScreenChat, got.Screen)
	assert.Equal(t, "bob", got.PartnerUsername)

	metrics.ConnectionLostTotal.Add(0)
	resp, body = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "chatxp_connection_lost_total")

	resp, _ = get(t, srv, "/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
