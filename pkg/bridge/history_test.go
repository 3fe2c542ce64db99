package bridge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slackirc/bridge/pkg/logger"
	"github.com/slackirc/bridge/pkg/session"
	"github.com/slackirc/bridge/pkg/slackapi"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Output: "stderr", Level: "error"})
	require.NoError(t, err)
	return log
}

// newHistorySession wires a real *session.Session at an httptest.Server
// that serves conversations.history for two rooms: C1 returns one page,
// C2 always errors, exercising backfillAll's per-room failure isolation.
func newHistorySession(t *testing.T) *session.Session {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		switch r.Form.Get("channel") {
		case "C1":
			w.Write([]byte(`{"ok":true,"has_more":false,"messages":[
				{"type":"message","channel":"C1","user":"U1","text":"hi","ts":"100.000"}
			]}`))
		default:
			w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := slackapi.NewClient("xoxb-test", "", slackapi.WithBaseURL(srv.URL), slackapi.WithHTTPClient(srv.Client()))
	return session.New(client, nil, newTestLogger(t))
}

func TestBackfillAllIsolatesPerRoomFailures(t *testing.T) {
	sess := newHistorySession(t)
	rooms := []*session.Room{
		{ID: "C1", Name: "#general"},
		{ID: "C2", Name: "#other"},
	}

	results := backfillAll(t.Context(), sess, rooms, map[string]string{}, nil)
	require.Len(t, results, 2)

	assert.Equal(t, "C1", results[0].RoomID)
	require.Len(t, results[0].Messages, 1)
	assert.Equal(t, "hi", results[0].Messages[0].Text)
	assert.False(t, results[0].Partial)

	assert.Equal(t, "C2", results[1].RoomID)
	assert.Empty(t, results[1].Messages)
}

func TestTsBeforeFormatsSecondsDotMicros(t *testing.T) {
	ts := tsBefore(time.Hour)
	assert.Regexp(t, `^\d+\.\d{6}$`, ts)
}
