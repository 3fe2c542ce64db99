package slackapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slackirc/bridge/pkg/bridgeerr"
	"github.com/slackirc/bridge/pkg/logger"
)

// newTestRTMServer serves rtm.connect and upgrades /ws to a websocket that
// writes each of frames in turn, one per accepted connection.
func newTestRTMServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	var upgrader websocket.Upgrader

	mux := http.NewServeMux()
	var wsURL string
	mux.HandleFunc("/rtm.connect", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"ok":true,"url":%q}`, wsURL)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Keep reading so the socket stays open until the client gives up.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv
}

func newTestRTM(t *testing.T, frames []string) (*RTM, *httptest.Server) {
	t.Helper()
	srv := newTestRTMServer(t, frames)
	client := NewClient("xoxb-test", "", WithBaseURL(srv.URL))
	log, err := logger.New(logger.Config{Output: "stderr", Level: "error"})
	require.NoError(t, err)
	return NewRTM(client, log), srv
}

func TestRunOnceReturnsTransientErrorOnGoodbye(t *testing.T) {
	rtm, srv := newTestRTM(t, []string{`{"type":"goodbye"}`})
	defer srv.Close()

	err := rtm.runOnce(t.Context(), false)
	require.Error(t, err)
	kind, ok := bridgeerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, bridgeerr.KindTransportTransient, kind)
}

func TestRunOnceForwardsGoodbyeEventBeforeReturning(t *testing.T) {
	rtm, srv := newTestRTM(t, []string{`{"type":"goodbye"}`})
	defer srv.Close()

	go rtm.runOnce(t.Context(), false)

	evt := <-rtm.Events
	assert.Equal(t, EventGoodbye, evt.Type)
}
