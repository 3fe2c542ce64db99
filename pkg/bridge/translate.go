package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slackirc/bridge/pkg/diff"
	"github.com/slackirc/bridge/pkg/ircd"
	"github.com/slackirc/bridge/pkg/message"
	"github.com/slackirc/bridge/pkg/session"
	"github.com/slackirc/bridge/pkg/slackapi"
)

// dispatchSlack routes one decoded RTM event to its handler. Unknown
// variants are logged and dropped, per spec.md §9 ("unknown variants are
// logged and dropped, never coerced").
func (ls *liveSession) dispatchSlack(evt slackapi.Event) {
	switch evt.Type {
	case slackapi.EventHello:
		ls.log.Debug("slack rtm session established")

	case slackapi.Reconnected:
		if ls.b.m != nil {
			ls.b.m.SlackReconnects.Inc()
		}
		ls.b.setState(StateReconnecting)
		if err := ls.sess.SyncRoster(ls.ctx); err != nil {
			ls.log.Warn("roster resync after reconnect failed", "error", err)
		}
		ls.b.setState(StateRunning)

	case slackapi.EventGoodbye:
		ls.log.Info("slack sent goodbye, reconnect loop will re-establish")

	case slackapi.EventMessage:
		ls.handleMessageEvent(evt.Message)

	case slackapi.EventChannelJoin:
		ls.handleChannelJoined(evt.Raw)

	case slackapi.EventChannelLeave:
		ls.handleChannelLeft(evt.Raw)

	case slackapi.EventUserTyping:
		ls.handleTyping(evt.Raw)

	case slackapi.EventReactionAdd:
		ls.handleReactionAdded(evt.Raw)

	case slackapi.EventPresence:
		ls.log.Debug("presence change event dropped (no IRC analogue)")

	default:
		ls.log.Debug("dropping unrecognised rtm event", "type", evt.Type)
	}
}

func (ls *liveSession) handleMessageEvent(msg slackapi.Message) {
	switch msg.Subtype {
	case "message_changed":
		ls.handleMessageChanged(msg)
	case "message_deleted":
		ls.handleMessageDeleted(msg)
	default:
		ls.handleIncomingMessage(msg)
	}
}

func (ls *liveSession) handleMessageChanged(msg slackapi.Message) {
	if msg.Message == nil || msg.Previous == nil {
		return
	}
	d := diff.Diff(msg.Previous.Text, msg.Message.Text)
	if !d.Changed {
		return
	}

	room, err := ls.sess.ResolveRoom(ls.ctx, msg.Channel)
	if err != nil {
		return
	}
	target := ls.deliveryTargetFor(room, msg.Message.ThreadTs)
	if target == "" {
		return
	}

	_, mask := ls.senderMask(msg.Message.User)
	ls.conn.WriteMessage(mask, "PRIVMSG", target, "[edit] "+d.String())
}

func (ls *liveSession) handleMessageDeleted(msg slackapi.Message) {
	room, err := ls.sess.ResolveRoom(ls.ctx, msg.Channel)
	if err != nil {
		return
	}
	target := ls.deliveryTargetFor(room, "")
	if target == "" {
		return
	}
	ls.conn.WriteMessage(ircd.ServerName, "NOTICE", target, fmt.Sprintf("[deleted message %s]", msg.DeletedTs))
}

// handleIncomingMessage delivers one ordinary (or backfilled) message,
// applying the dedup, thread-materialization, rendering, and autoreact
// rules of spec.md §3/§4.2/§4.6.
func (ls *liveSession) handleIncomingMessage(msg slackapi.Message) {
	if msg.Ts == "" || msg.Channel == "" {
		return
	}
	if msg.Ts <= ls.lastSeen[msg.Channel] {
		return // invariant 4: dedup by (room-id, ts) against the last-seen cursor
	}

	room, err := ls.sess.ResolveRoom(ls.ctx, msg.Channel)
	if err != nil {
		ls.log.Warn("dropping message for unresolvable room", "room", msg.Channel, "error", err)
		return
	}

	target, firstObservation := ls.resolveDelivery(room, msg.ThreadTs)
	ls.lastSeen[msg.Channel] = msg.Ts

	if target == "" {
		// Autojoin is off and the room hasn't been /join'ed yet: queue for
		// replay once the client does join, per spec.md §8 scenario 2.
		ls.pending[room.ID] = append(ls.pending[room.ID], msg)
		return
	}
	if firstObservation {
		ls.announceThreadJoin(room, msg.ThreadTs, target)
	}

	ls.deliverRendered(room, target, msg)

	if msg.User != "" && msg.User != ls.sess.SelfID {
		now := time.Now()
		for _, reaction := range ls.rules.rollAutoreacts(msg.User, room.ID, now) {
			if err := ls.sess.React(ls.ctx, room.ID, msg.Ts, reaction); err != nil {
				ls.log.Warn("autoreact failed", "room", room.ID, "error", err)
				continue
			}
			if ls.b.m != nil {
				ls.b.m.AutoreactFired.Inc()
			}
		}
	}
	ls.sess.Mark(ls.ctx, room.ID, msg.Ts)
}

// deliverRendered parses, overflow-checks, and writes the PRIVMSG line for
// one message whose destination has already been resolved.
func (ls *liveSession) deliverRendered(room *session.Room, target string, msg slackapi.Message) {
	spans := message.Parse(msg.Text)

	if message.CountCodeLines(spans) > ls.b.cfg.FormattedMaxLines {
		ref := ls.overflowToFile(room.ID, msg.Ts, msg.Text)
		_, mask := ls.senderMask(msg.User)
		ls.conn.WriteMessage(mask, "PRIVMSG", target, "[formatted message, see "+ref+"]")
		return
	}

	roster := ls.sess.Roster(room.ID)
	senderNick, mask := ls.senderMask(msg.User)
	silenced := ls.silenced[senderNick] || ls.silenced[strings.TrimPrefix(room.Name, "#")]
	rendered := message.Render(spans, roster, silenced)
	if rendered == "" {
		return
	}
	ls.conn.WriteMessage(mask, "PRIVMSG", target, rendered)
	if ls.b.m != nil {
		ls.b.m.MessagesDelivered.Inc()
	}
}

// overflowToFile writes an over-long preformatted message to the downloads
// directory and returns a reference path, per spec.md §4.2 and §6 ("Files
// are named <room>-<ts>.txt").
func (ls *liveSession) overflowToFile(roomID, ts, text string) string {
	name := fmt.Sprintf("%s-%s.txt", roomID, ts)
	path := filepath.Join(ls.b.cfg.DownloadsDir, name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		ls.log.Warn("failed to write overflow file", "path", path, "error", err)
		return name
	}
	return path
}

// resolveDelivery picks the IRC target for an incoming message: the
// synthetic thread channel if threadTS names a reply, the room's own IRC
// name/peer otherwise. It returns "" if the room is a not-yet-joined
// channel with autojoin off, signalling the caller to queue instead.
// firstObservation is true exactly when a thread channel was just
// materialized for the first time.
func (ls *liveSession) resolveDelivery(room *session.Room, threadTS string) (target string, firstObservation bool) {
	if threadTS != "" {
		thread, created := ls.sess.Threads.Observe(room.ID, room.Name, threadTS)
		if ls.sess.Threads.HasLeft(thread.Channel) {
			return "", false
		}
		return thread.Channel, created
	}

	switch room.Kind {
	case session.KindIM:
		nick, _ := ls.senderMask(room.PeerID)
		return nick, false
	default:
		if !ls.joinedIRC[room.ID] {
			if ls.b.cfg.Autojoin {
				ls.joinRoomOnIRC(room)
			} else {
				return "", false
			}
		}
		return room.Name, false
	}
}

// deliveryTargetFor is resolveDelivery's read-only counterpart used by edit/
// delete handling, which must never auto-join or queue: an edit to a
// message the client never saw is simply dropped.
func (ls *liveSession) deliveryTargetFor(room *session.Room, threadTS string) string {
	if threadTS != "" {
		if t, ok := ls.sess.Threads.ByKey(room.ID, threadTS); ok && !ls.sess.Threads.HasLeft(t.Channel) {
			return t.Channel
		}
		return ""
	}
	if room.Kind == session.KindIM {
		nick, _ := ls.senderMask(room.PeerID)
		return nick
	}
	if ls.joinedIRC[room.ID] {
		return room.Name
	}
	return ""
}

// announceThreadJoin implements spec.md §8 scenario 5: on first observed
// reply, JOIN every current room member into the synthetic channel and set
// its topic to point back at the parent.
func (ls *liveSession) announceThreadJoin(room *session.Room, threadTS, channel string) {
	for id := range room.Members {
		_, mask := ls.senderMask(id)
		ls.conn.WriteMessage(mask, "JOIN", channel)
	}
	ls.conn.WriteMessage(ircd.Mask(ls.sess.SelfNick), "JOIN", channel)
	ls.conn.WriteMessage(ircd.ServerName, "TOPIC", channel, "Thread in "+room.Name)
}

// senderMask resolves a Slack user id to an IRC nick and a nick!user@host
// origin mask, falling back to the raw id when the user is unknown (per
// spec.md invariant 1: a missing id never blocks delivery).
func (ls *liveSession) senderMask(userID string) (nick, mask string) {
	if userID == "" {
		return ircd.ServerName, ircd.ServerName
	}
	if u, ok := ls.sess.CachedUser(userID); ok {
		return u.Nick, ircd.Mask(u.Nick)
	}
	return userID, ircd.Mask(userID)
}

func (ls *liveSession) handleChannelJoined(raw json.RawMessage) {
	var payload struct {
		Channel slackapi.Channel `json:"channel"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		ls.log.Warn("malformed channel_joined event", "error", err)
		return
	}
	ls.sess.InvalidateRoom(payload.Channel.ID)
	room, err := ls.sess.ResolveRoom(ls.ctx, payload.Channel.ID)
	if err != nil || room.Kind != session.KindChannel {
		return
	}
	// Per spec.md §4.4: a Slack-originated channel_joined always drives an
	// IRC-side JOIN, regardless of the autojoin setting.
	ls.joinRoomOnIRC(room)
}

func (ls *liveSession) handleChannelLeft(raw json.RawMessage) {
	var payload struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		ls.log.Warn("malformed channel_left event", "error", err)
		return
	}
	room, err := ls.sess.ResolveRoom(ls.ctx, payload.Channel)
	if err != nil || !ls.joinedIRC[payload.Channel] {
		return
	}
	delete(ls.joinedIRC, payload.Channel)
	room.JoinedIRC = false
	ls.conn.WriteMessage(ircd.Mask(ls.sess.SelfNick), "PART", room.Name, "left on slack")
}

func (ls *liveSession) handleTyping(raw json.RawMessage) {
	var payload struct {
		User    string `json:"user"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	if payload.User == "" || payload.User == ls.sess.SelfID {
		return
	}
	if ls.rules.shouldAnnoy(payload.User, time.Now()) {
		ls.sess.Typing(ls.ctx, payload.Channel)
		if ls.b.m != nil {
			ls.b.m.AnnoyFired.Inc()
		}
	}
}

func (ls *liveSession) handleReactionAdded(raw json.RawMessage) {
	var payload struct {
		User     string `json:"user"`
		Reaction string `json:"reaction"`
		Item     struct {
			Channel string `json:"channel"`
			Ts      string `json:"ts"`
		} `json:"item"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	room, err := ls.sess.ResolveRoom(ls.ctx, payload.Item.Channel)
	if err != nil {
		return
	}
	target := ls.deliveryTargetFor(room, "")
	if target == "" {
		return
	}
	_, mask := ls.senderMask(payload.User)
	ls.conn.WriteMessage(mask, "NOTICE", target, fmt.Sprintf("reacted :%s: to an earlier message", payload.Reaction))
}

