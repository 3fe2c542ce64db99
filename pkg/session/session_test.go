package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slackirc/bridge/pkg/logger"
	"github.com/slackirc/bridge/pkg/slackapi"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Output: "stderr", Level: "error"})
	require.NoError(t, err)
	return log
}

// newFakeSlack serves just enough of the Web API for Session's cache-fill
// paths: users.list, conversations.list, and an echo chat.postMessage.
func newFakeSlack(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/users.list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"members":[
			{"id":"U1","name":"alice","real_name":"Alice A","profile":{"display_name":"alice"}},
			{"id":"U2","name":"bob","real_name":"Bob B","profile":{"display_name":""}}
		]}`))
	})

	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"channels":[
			{"id":"C1","name":"general","is_channel":true,"members":["U1","U2"]},
			{"id":"D1","is_im":true,"user":"U2"}
		]}`))
	})

	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"ts":"111.222"}`))
	})

	mux.HandleFunc("/reactions.add", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":"already_reacted"}`))
	})

	mux.HandleFunc("/conversations.mark", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	srv := newFakeSlack(t)
	client := slackapi.NewClient("xoxb-test", "", slackapi.WithBaseURL(srv.URL), slackapi.WithHTTPClient(srv.Client()))
	return New(client, nil, newTestLogger(t))
}

func TestSyncRosterPopulatesCaches(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.SyncRoster(t.Context()))

	u, ok := s.CachedUser("U1")
	require.True(t, ok)
	assert.Equal(t, "alice", u.Nick)

	u2, ok := s.CachedUser("U2")
	require.True(t, ok)
	assert.Equal(t, "Bob B", u2.Nick) // falls back to real_name when display_name is empty

	room, ok := s.ResolveRoomByName("#general")
	require.True(t, ok)
	assert.Equal(t, KindChannel, room.Kind)
	assert.True(t, room.Members["U1"])

	im, ok := s.FindIM("U2")
	require.True(t, ok)
	assert.Equal(t, KindIM, im.Kind)
}

func TestResolveRoomRefreshesOnMiss(t *testing.T) {
	s := newTestSession(t)
	room, err := s.ResolveRoom(t.Context(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "#general", room.Name)
}

func TestResolveUserRefreshesOnMiss(t *testing.T) {
	s := newTestSession(t)
	u, err := s.ResolveUser(t.Context(), "U1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Nick)
}

func TestResolveRoomUnknownIDFails(t *testing.T) {
	s := newTestSession(t)
	_, err := s.ResolveRoom(t.Context(), "CBOGUS")
	assert.Error(t, err)
}

func TestPostReturnsTimestamp(t *testing.T) {
	s := newTestSession(t)
	ts, err := s.Post(t.Context(), "C1", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "111.222", ts)
}

func TestReactSwallowsAlreadyReacted(t *testing.T) {
	s := newTestSession(t)
	err := s.React(t.Context(), "C1", "111.222", "thumbsup")
	assert.NoError(t, err)
}

func TestInvalidateUserDropsCacheEntry(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.SyncRoster(t.Context()))
	s.InvalidateUser("U1")
	_, ok := s.CachedUser("U1")
	assert.False(t, ok)
}
