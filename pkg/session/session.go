package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/slackirc/bridge/pkg/bridgeerr"
	"github.com/slackirc/bridge/pkg/logger"
	"github.com/slackirc/bridge/pkg/slackapi"
)

// PostError wraps a failed post(), distinguishing rate-limit/permission
// failures from an unknown room, per spec.md §4.4.
type PostError struct {
	RoomID string
	Cause  error
}

func (e *PostError) Error() string {
	return fmt.Sprintf("post to %s: %v", e.RoomID, e.Cause)
}

func (e *PostError) Unwrap() error { return e.Cause }

// ErrFileNotFound is returned by Upload when the local path is unreadable.
var ErrFileNotFound = errors.New("file not found")

// Session is the typed Slack client C4 describes: rosters, rooms, threads,
// and the actions the bridge core issues against them, all backed by a
// slackapi.Client/RTM pair.
type Session struct {
	client *slackapi.Client
	RTM    *slackapi.RTM
	log    *logger.Logger

	Users   *refreshCache[*User]
	Rooms   *refreshCache[*Room]
	Threads *ThreadMap

	SelfID   string
	SelfNick string
}

// New builds a Session bound to client/rtm. Lookup misses on Users/Rooms
// trigger a singleflight-deduped refresh via client.
func New(client *slackapi.Client, rtm *slackapi.RTM, log *logger.Logger) *Session {
	s := &Session{client: client, RTM: rtm, log: log, Threads: NewThreadMap()}

	s.Users = newRefreshCache(func(ctx context.Context, id string) (*User, string, error) {
		users, err := client.UsersList(ctx)
		if err != nil {
			return nil, "", err
		}
		for _, u := range users {
			s.Users.put(u.ID, userFromSlack(u).Nick, userFromSlack(u))
		}
		for _, u := range users {
			if u.ID == id {
				uu := userFromSlack(u)
				return uu, uu.Nick, nil
			}
		}
		return nil, "", fmt.Errorf("user %s not found after refresh", id)
	})

	s.Rooms = newRefreshCache(func(ctx context.Context, id string) (*Room, string, error) {
		channels, err := client.ConversationsList(ctx)
		if err != nil {
			return nil, "", err
		}
		for _, ch := range channels {
			room := roomFromChannel(ch, s.nickOf)
			s.Rooms.put(ch.ID, room.Name, room)
		}
		for _, ch := range channels {
			if ch.ID == id {
				room := roomFromChannel(ch, s.nickOf)
				return room, room.Name, nil
			}
		}
		return nil, "", fmt.Errorf("room %s not found after refresh", id)
	})

	return s
}

// SyncRoster forces a full users.list/conversations.list refresh, priming
// both caches in one pass. Used once at SYNCING, since the lazy
// refresh-on-miss caches would otherwise only ever see the ids the first
// few events happen to reference.
func (s *Session) SyncRoster(ctx context.Context) error {
	users, err := s.client.UsersList(ctx)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "sync users", err)
	}
	for _, u := range users {
		uu := userFromSlack(u)
		s.Users.put(u.ID, uu.Nick, uu)
	}

	channels, err := s.client.ConversationsList(ctx)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.KindTransportTransient, "sync rooms", err)
	}
	for _, ch := range channels {
		room := roomFromChannel(ch, s.nickOf)
		s.Rooms.put(ch.ID, room.Name, room)
	}
	return nil
}

func (s *Session) nickOf(id string) string {
	if u, ok := s.Users.get(id); ok {
		return u.Nick
	}
	return ""
}

func userFromSlack(u slackapi.User) *User {
	nick := u.DisplayName()
	if nick == "" {
		nick = u.Name
	}
	return &User{ID: u.ID, Nick: nick, RealName: u.RealName, IsBot: u.IsBot, Deleted: u.Deleted}
}

// ResolveUser resolves id against the cache, triggering a refresh on miss.
func (s *Session) ResolveUser(ctx context.Context, id string) (*User, error) {
	u, err := s.Users.resolve(ctx, id)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindLookupMiss, "resolve user "+id, err)
	}
	return u, nil
}

// ResolveRoom resolves id against the cache, triggering a refresh on miss.
func (s *Session) ResolveRoom(ctx context.Context, id string) (*Room, error) {
	r, err := s.Rooms.resolve(ctx, id)
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.KindLookupMiss, "resolve room "+id, err)
	}
	return r, nil
}

// CachedUser returns a user already present in the cache without
// triggering a refresh on miss, for callers that only want a best-effort
// lookup (e.g. rendering a NAMES list from the membership already known).
func (s *Session) CachedUser(id string) (*User, bool) {
	return s.Users.get(id)
}

// ResolveRoomByName looks up a cached room by its IRC-facing name (e.g.
// "#general" or a synthetic thread channel is looked up via ThreadMap
// instead). Unlike ResolveRoom, this never triggers a refresh: an unknown
// name simply isn't a room the bridge has ever seen.
func (s *Session) ResolveRoomByName(name string) (*Room, bool) {
	return s.Rooms.getByName(name)
}

// FindIM returns the IM room whose peer is peerID, if the roster has been
// synced. Rooms are few enough per workspace that a linear scan is simpler
// than maintaining a second index that would only ever be consulted here.
func (s *Session) FindIM(peerID string) (*Room, bool) {
	for _, r := range s.Rooms.all() {
		if r.Kind == KindIM && r.PeerID == peerID {
			return r, true
		}
	}
	return nil, false
}

// InvalidateUser drops a cached user so the next lookup refetches it.
func (s *Session) InvalidateUser(id string) { s.Users.invalidate(id) }

// InvalidateRoom drops a cached room so the next lookup refetches it.
func (s *Session) InvalidateRoom(id string) { s.Rooms.invalidate(id) }

// Join subscribes the session to a room on Slack. Idempotent if already
// joined, per spec.md §4.4.
func (s *Session) Join(ctx context.Context, roomID string) error {
	if err := s.client.JoinConversation(ctx, roomID); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindCommand, "join "+roomID, err)
	}
	if r, ok := s.Rooms.get(roomID); ok {
		r.JoinedSlack = true
	}
	return nil
}

// Leave unsubscribes from a room on Slack. Idempotent if not currently a
// member.
func (s *Session) Leave(ctx context.Context, roomID string) error {
	if err := s.client.LeaveConversation(ctx, roomID); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindCommand, "leave "+roomID, err)
	}
	if r, ok := s.Rooms.get(roomID); ok {
		r.JoinedSlack = false
	}
	return nil
}

// Post sends text to roomID, optionally as a thread reply, and returns the
// posted ts.
func (s *Session) Post(ctx context.Context, roomID, text, threadTS string) (string, error) {
	ts, err := s.client.PostMessage(ctx, roomID, text, threadTS)
	if err != nil {
		return "", &PostError{RoomID: roomID, Cause: err}
	}
	return ts, nil
}

// Upload reads path from local disk and posts it to roomID.
func (s *Session) Upload(ctx context.Context, roomID, path, comment string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	filename := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		filename = path[i+1:]
	}
	if err := s.client.UploadFile(ctx, roomID, filename, data, comment); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindCommand, "upload "+path, err)
	}
	return nil
}

// HistoryResult is the outcome of a (possibly partial) history fetch.
type HistoryResult struct {
	Messages []slackapi.Message
	Partial  bool // true if a later page failed and earlier pages are all that's returned
}

// History lazily pages through roomID's history since sinceTS, stopping at
// limit messages or the oldest page. Messages from deleted users are
// omitted. A failure after the first page yields what was fetched so far,
// flagged Partial, rather than an error — per spec.md §4.4.
func (s *Session) History(ctx context.Context, roomID, sinceTS string, limit int) (HistoryResult, error) {
	var out HistoryResult
	oldest := sinceTS
	pageSize := limit
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 200
	}

	for len(out.Messages) < limit {
		remaining := limit - len(out.Messages)
		want := pageSize
		if remaining < want {
			want = remaining
		}

		msgs, hasMore, err := s.client.History(ctx, roomID, want, oldest)
		if err != nil {
			if len(out.Messages) > 0 {
				out.Partial = true
				s.log.Warn("history fetch failed after first page", "room", roomID, "error", err)
				return out, nil
			}
			return out, bridgeerr.Wrap(bridgeerr.KindTransportTransient, "history "+roomID, err)
		}

		for _, m := range msgs {
			if s.isDeletedUser(m.User) {
				continue
			}
			out.Messages = append(out.Messages, m)
		}

		if !hasMore || len(msgs) == 0 {
			break
		}
		oldest = msgs[len(msgs)-1].Ts
	}

	return out, nil
}

func (s *Session) isDeletedUser(userID string) bool {
	if userID == "" {
		return false
	}
	u, ok := s.Users.get(userID)
	return ok && u.Deleted
}

// Mark advances roomID's read cursor. Best-effort: network errors are
// logged and discarded, never surfaced to the caller.
func (s *Session) Mark(ctx context.Context, roomID, ts string) {
	if err := s.client.MarkRead(ctx, roomID, ts); err != nil {
		s.log.Warn("mark read failed", "room", roomID, "error", err)
	}
}

// Typing fires a typing indicator, discarding any error.
func (s *Session) Typing(ctx context.Context, roomID string) {
	s.client.Typing(ctx, roomID)
}

// React adds a reaction, idempotently. Duplicate-reaction responses are
// already swallowed by the transport layer (pkg/slackapi).
func (s *Session) React(ctx context.Context, roomID, ts, name string) error {
	if err := s.client.React(ctx, roomID, ts, name); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindCommand, "react "+roomID+" "+ts, err)
	}
	return nil
}

// SetTopic sets roomID's topic on Slack.
func (s *Session) SetTopic(ctx context.Context, roomID, topic string) error {
	if err := s.client.SetTopic(ctx, roomID, topic); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindCommand, "topic "+roomID, err)
	}
	if r, ok := s.Rooms.get(roomID); ok {
		r.Topic = topic
	}
	return nil
}

// Invite adds userID to roomID on Slack.
func (s *Session) Invite(ctx context.Context, roomID, userID string) error {
	if err := s.client.Invite(ctx, roomID, userID); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindCommand, "invite "+userID+" to "+roomID, err)
	}
	return nil
}

// Kick removes userID from roomID on Slack.
func (s *Session) Kick(ctx context.Context, roomID, userID string) error {
	if err := s.client.Kick(ctx, roomID, userID); err != nil {
		return bridgeerr.Wrap(bridgeerr.KindCommand, "kick "+userID+" from "+roomID, err)
	}
	return nil
}

// AllRooms returns every cached room, for iteration during sync/backfill.
func (s *Session) AllRooms() []*Room { return s.Rooms.all() }

// AllUsers returns every cached user.
func (s *Session) AllUsers() []*User { return s.Users.all() }
