package bridge

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slackirc/bridge/pkg/ircd"
	"github.com/slackirc/bridge/pkg/message"
	"github.com/slackirc/bridge/pkg/session"
)

// defaultAnnoyDuration and defaultAutoreactDuration are the rule lifetimes
// applied when /annoy or /autoreact is issued without an explicit duration.
// defaultAutoreactEmoji is the reaction applied when /autoreact is issued
// without an explicit reaction name.
const (
	defaultAnnoyDuration     = 1 * time.Hour
	defaultAutoreactDuration = 24 * time.Hour
	defaultAutoreactEmoji    = "thumbsup"
)

// handleIRCMessage translates one decoded IRC line into the Slack action it
// names, per the command vocabulary of spec.md §4.5. A QUIT returns errQuit
// so loop() can unwind the attachment cleanly; every other error is logged
// by the caller and the attachment continues.
func (ls *liveSession) handleIRCMessage(msg ircd.Message) error {
	switch msg.Command {
	case "PING":
		ls.conn.WriteLine(ircd.Format(ircd.ServerName, "PONG", paramOr(msg, 0, ircd.ServerName)))
		return nil
	case "PONG":
		return nil
	case "QUIT":
		return errQuit

	case "JOIN":
		return ls.cmdJoin(msg)
	case "PART":
		return ls.cmdPart(msg)
	case "PRIVMSG":
		return ls.cmdPrivmsg(msg)
	case "NOTICE":
		return ls.cmdPrivmsg(msg) // identical wire shape; Slack has no notice/message distinction
	case "TOPIC":
		return ls.cmdTopic(msg)
	case "LIST":
		return ls.cmdList(msg)
	case "NAMES":
		return ls.cmdNames(msg)
	case "WHO":
		return ls.cmdWho(msg)
	case "WHOIS":
		return ls.cmdWhois(msg)
	case "INVITE":
		return ls.cmdInvite(msg)
	case "KICK":
		return ls.cmdKick(msg)
	case "MODE", "AWAY", "USERHOST":
		return nil // accepted, no Slack-side effect

	default:
		ls.log.Debug("unhandled irc command", "command", msg.Command)
		return nil
	}
}

func paramOr(msg ircd.Message, i int, fallback string) string {
	if i < len(msg.Params) {
		return msg.Params[i]
	}
	return fallback
}

// cmdJoin handles a plain "/join #room", including rejoining a synthetic
// thread channel; the extension slash-commands go through
// dispatchSlashCommand instead. Ordinary joins also replay anything queued
// in ls.pending for the room, per spec.md §8 scenario 2.
func (ls *liveSession) cmdJoin(msg ircd.Message) error {
	if len(msg.Params) == 0 {
		return nil
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		if t, ok := ls.sess.Threads.Lookup(name); ok {
			ls.sess.Threads.MarkRejoined(name)
			ls.conn.WriteMessage(ircd.Mask(ls.sess.SelfNick), "JOIN", name)
			if parent, err := ls.sess.ResolveRoom(ls.ctx, t.RoomID); err == nil {
				ls.conn.WriteLine(ircd.NumericArgs(ircd.RplTopic, ls.conn.Nick, []string{name}, "Thread in "+parent.Name))
			}
			continue
		}

		r, ok := ls.sess.ResolveRoomByName(name)
		if !ok {
			ls.conn.WriteLine(ircd.NumericArgs(ircd.ErrNoSuchChannel, ls.conn.Nick, []string{name}, "No such channel"))
			continue
		}
		if err := ls.sess.Join(ls.ctx, r.ID); err != nil {
			return err
		}
		ls.joinRoomOnIRC(r)
		for _, queued := range ls.pending[r.ID] {
			ls.handleIncomingMessage(queued)
		}
		delete(ls.pending, r.ID)
	}
	return nil
}

func (ls *liveSession) cmdPart(msg ircd.Message) error {
	if len(msg.Params) == 0 {
		return nil
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		if t, ok := ls.sess.Threads.Lookup(name); ok {
			ls.sess.Threads.MarkLeft(name)
			ls.conn.WriteMessage(ircd.Mask(ls.sess.SelfNick), "PART", name)
			continue
		}

		r, ok := ls.sess.ResolveRoomByName(name)
		if !ok {
			continue
		}
		delete(ls.joinedIRC, r.ID)
		r.JoinedIRC = false
		ls.conn.WriteMessage(ircd.Mask(ls.sess.SelfNick), "PART", name)
		// Leaving on IRC does not unsubscribe on Slack: the bridge keeps
		// tracking the room so a new message can re-join it later.
	}
	return nil
}

// cmdPrivmsg handles ordinary messages, /me, and the bridge's extension
// slash-commands (spec.md §4.5's "non-standard but documented" vocabulary).
func (ls *liveSession) cmdPrivmsg(msg ircd.Message) error {
	if len(msg.Params) < 2 {
		return nil
	}
	target, text := msg.Params[0], msg.Params[1]

	if strings.HasPrefix(text, "\x01ACTION ") && strings.HasSuffix(text, "\x01") {
		action := strings.TrimSuffix(strings.TrimPrefix(text, "\x01ACTION "), "\x01")
		return ls.postToTarget(target, "_"+action+"_")
	}

	if strings.HasPrefix(text, "/") {
		if handled, err := ls.dispatchSlashCommand(target, text); handled {
			return err
		}
	}

	return ls.postToTarget(target, text)
}

func (ls *liveSession) postToTarget(target, text string) error {
	roomID, threadTS, ok := ls.resolvePostTarget(target)
	if !ok {
		ls.conn.WriteLine(ircd.NumericArgs(ircd.ErrNoSuchNick, ls.conn.Nick, []string{target}, "No such nick/channel"))
		return nil
	}
	rendered := message.RenderOutgoing(text, ls.sess.ResolveNick, ls.sess.ResolveRoomName)
	ts, err := ls.sess.Post(ls.ctx, roomID, rendered, threadTS)
	if err != nil {
		return err
	}
	ls.markOwnPost(roomID, ts)
	return nil
}

// resolvePostTarget resolves an IRC PRIVMSG target to a Slack room id and,
// for a synthetic thread channel, the parent ts to reply against.
func (ls *liveSession) resolvePostTarget(target string) (roomID, threadTS string, ok bool) {
	if t, found := ls.sess.Threads.Lookup(target); found {
		return t.RoomID, t.ParentTS, true
	}
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		if r, found := ls.sess.ResolveRoomByName(target); found {
			return r.ID, "", true
		}
		return "", "", false
	}
	if peerID, found := ls.sess.ResolveNick(target); found {
		if r, found := ls.sess.FindIM(peerID); found {
			return r.ID, "", true
		}
	}
	return "", "", false
}

// dispatchSlashCommand handles the bridge's extension commands (spec.md
// §4.5). handled is false for anything starting with "/" that isn't one of
// these, so the caller falls through to posting it as literal text (a
// message that happens to start with a slash, e.g. a shell command pasted
// into chat).
func (ls *liveSession) dispatchSlashCommand(target, text string) (handled bool, err error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false, nil
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "/me":
		rest := strings.TrimSpace(strings.TrimPrefix(text, "/me"))
		return true, ls.postToTarget(target, "_"+rest+"_")

	case "/sendfile":
		if len(args) < 1 {
			ls.notice(target, "usage: /sendfile <path> [comment]")
			return true, nil
		}
		roomID, _, ok := ls.resolvePostTarget(target)
		if !ok {
			ls.notice(target, "unknown target")
			return true, nil
		}
		comment := strings.Join(args[1:], " ")
		if err := ls.sess.Upload(ls.ctx, roomID, args[0], comment); err != nil {
			ls.notice(target, "upload failed: "+err.Error())
		}
		return true, nil

	case "/annoy":
		if len(args) < 1 {
			ls.notice(target, "usage: /annoy <nick> [duration]")
			return true, nil
		}
		d := defaultAnnoyDuration
		if len(args) >= 2 {
			if parsed, err := parseDurationArg(args[1]); err == nil {
				d = parsed
			}
		}
		userID, ok := ls.sess.ResolveNick(args[0])
		if !ok {
			ls.notice(target, "no such nick: "+args[0])
			return true, nil
		}
		ls.rules.addAnnoy(userID, d)
		ls.persistRulesNow()
		ls.notice(target, "annoying "+args[0])
		return true, nil

	case "/dropannoy":
		if len(args) < 1 {
			ls.notice(target, "usage: /dropannoy <nick>")
			return true, nil
		}
		userID, ok := ls.sess.ResolveNick(args[0])
		if ok && ls.rules.dropAnnoy(userID) {
			ls.persistRulesNow()
			ls.notice(target, "stopped annoying "+args[0])
		} else {
			ls.notice(target, "not annoying "+args[0])
		}
		return true, nil

	case "/listannoy":
		var names []string
		for _, id := range ls.rules.listAnnoy() {
			if u, ok := ls.sess.CachedUser(id); ok {
				names = append(names, u.Nick)
			} else {
				names = append(names, id)
			}
		}
		ls.notice(target, "annoying: "+strings.Join(names, ", "))
		return true, nil

	case "/autoreact":
		if len(args) < 2 {
			ls.notice(target, "usage: /autoreact <nick> <probability> [reaction] [duration]")
			return true, nil
		}
		userID, ok := ls.sess.ResolveNick(args[0])
		if !ok {
			ls.notice(target, "no such nick: "+args[0])
			return true, nil
		}
		prob, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			ls.notice(target, "invalid probability: "+args[1])
			return true, nil
		}
		reaction := defaultAutoreactEmoji
		d := defaultAutoreactDuration
		if len(args) >= 3 {
			reaction = args[2]
		}
		if len(args) >= 4 {
			if parsed, err := parseDurationArg(args[3]); err == nil {
				d = parsed
			}
		}
		roomID, _, _ := ls.resolvePostTarget(target)
		ls.rules.addAutoreact(userID, roomID, prob, reaction, d)
		ls.persistRulesNow()
		ls.notice(target, fmt.Sprintf("autoreacting :%s: to %s", reaction, args[0]))
		return true, nil

	case "/dropautoreact":
		if len(args) < 1 {
			ls.notice(target, "usage: /dropautoreact <nick>")
			return true, nil
		}
		userID, ok := ls.sess.ResolveNick(args[0])
		if ok && ls.rules.dropAutoreact(userID) {
			ls.persistRulesNow()
			ls.notice(target, "stopped autoreacting to "+args[0])
		} else {
			ls.notice(target, "no autoreact for "+args[0])
		}
		return true, nil

	case "/listautoreact":
		var names []string
		for _, id := range ls.rules.listAutoreact() {
			if u, ok := ls.sess.CachedUser(id); ok {
				names = append(names, u.Nick)
			} else {
				names = append(names, id)
			}
		}
		ls.notice(target, "autoreacting to: "+strings.Join(names, ", "))
		return true, nil

	case "/topic":
		roomID, _, ok := ls.resolvePostTarget(target)
		if !ok {
			return true, nil
		}
		return true, ls.sess.SetTopic(ls.ctx, roomID, strings.TrimSpace(strings.TrimPrefix(text, "/topic")))

	case "/invite":
		if len(args) < 1 {
			return true, nil
		}
		roomID, _, ok := ls.resolvePostTarget(target)
		userID, userOK := ls.sess.ResolveNick(args[0])
		if !ok || !userOK {
			ls.notice(target, "unknown room or nick")
			return true, nil
		}
		return true, ls.sess.Invite(ls.ctx, roomID, userID)

	case "/kick":
		if len(args) < 1 {
			return true, nil
		}
		roomID, _, ok := ls.resolvePostTarget(target)
		userID, userOK := ls.sess.ResolveNick(args[0])
		if !ok || !userOK {
			ls.notice(target, "unknown room or nick")
			return true, nil
		}
		return true, ls.sess.Kick(ls.ctx, roomID, userID)

	case "/whois":
		if len(args) < 1 {
			return true, nil
		}
		return true, ls.cmdWhoisNick(target, args[0])

	default:
		return false, nil
	}
}

func (ls *liveSession) notice(target, text string) {
	ls.conn.WriteMessage(ircd.ServerName, "NOTICE", target, text)
}

func (ls *liveSession) cmdTopic(msg ircd.Message) error {
	if len(msg.Params) == 0 {
		return nil
	}
	name := msg.Params[0]
	r, ok := ls.sess.ResolveRoomByName(name)
	if !ok {
		return nil
	}
	if len(msg.Params) == 1 {
		if r.Topic != "" {
			ls.conn.WriteLine(ircd.NumericArgs(ircd.RplTopic, ls.conn.Nick, []string{name}, r.Topic))
		} else {
			ls.conn.WriteLine(ircd.NumericArgs(ircd.RplNoTopic, ls.conn.Nick, []string{name}, "No topic is set"))
		}
		return nil
	}
	return ls.sess.SetTopic(ls.ctx, r.ID, msg.Params[1])
}

func (ls *liveSession) cmdList(msg ircd.Message) error {
	for _, r := range ls.sess.AllRooms() {
		if r.Kind != session.KindChannel || r.Archived {
			continue
		}
		ls.conn.WriteLine(ircd.NumericArgs(ircd.RplList, ls.conn.Nick, []string{r.Name, strconv.Itoa(len(r.Members))}, r.Purpose))
	}
	ls.conn.WriteLine(ircd.NumericArgs(ircd.RplListEnd, ls.conn.Nick, nil, "End of /LIST"))
	return nil
}

func (ls *liveSession) cmdNames(msg ircd.Message) error {
	if len(msg.Params) == 0 {
		return nil
	}
	r, ok := ls.sess.ResolveRoomByName(msg.Params[0])
	if !ok {
		return nil
	}
	ls.sendNames(r)
	return nil
}

func (ls *liveSession) cmdWho(msg ircd.Message) error {
	if len(msg.Params) == 0 {
		return nil
	}
	r, ok := ls.sess.ResolveRoomByName(msg.Params[0])
	if !ok {
		return nil
	}
	for id := range r.Members {
		u, ok := ls.sess.CachedUser(id)
		if !ok {
			continue
		}
		ls.conn.WriteLine(ircd.NumericArgs(ircd.RplWhoReply, ls.conn.Nick,
			[]string{r.Name, u.Nick, u.Nick, ircd.ServerName, u.Nick, "H"}, "0 "+u.RealName))
	}
	ls.conn.WriteLine(ircd.NumericArgs(ircd.RplEndOfWho, ls.conn.Nick, []string{r.Name}, "End of /WHO"))
	return nil
}

func (ls *liveSession) cmdWhois(msg ircd.Message) error {
	if len(msg.Params) == 0 {
		return nil
	}
	return ls.cmdWhoisNick("", msg.Params[0])
}

func (ls *liveSession) cmdWhoisNick(noticeTarget, nick string) error {
	userID, ok := ls.sess.ResolveNick(nick)
	if !ok {
		ls.conn.WriteLine(ircd.NumericArgs(ircd.ErrNoSuchNick, ls.conn.Nick, []string{nick}, "No such nick"))
		return nil
	}
	u, ok := ls.sess.CachedUser(userID)
	if !ok {
		u = &session.User{ID: userID, Nick: nick}
	}
	if noticeTarget != "" {
		ls.notice(noticeTarget, fmt.Sprintf("%s: %s (%s)", nick, u.RealName, userID))
		return nil
	}
	ls.conn.WriteLine(ircd.NumericArgs(ircd.RplWhoisUser, ls.conn.Nick, []string{nick, nick, ircd.ServerName, "*"}, u.RealName))
	ls.conn.WriteLine(ircd.NumericArgs(ircd.RplEndOfWhois, ls.conn.Nick, []string{nick}, "End of /WHOIS"))
	return nil
}

func (ls *liveSession) cmdInvite(msg ircd.Message) error {
	if len(msg.Params) < 2 {
		return nil
	}
	userID, ok := ls.sess.ResolveNick(msg.Params[0])
	if !ok {
		return nil
	}
	r, ok := ls.sess.ResolveRoomByName(msg.Params[1])
	if !ok {
		return nil
	}
	return ls.sess.Invite(ls.ctx, r.ID, userID)
}

func (ls *liveSession) cmdKick(msg ircd.Message) error {
	if len(msg.Params) < 2 {
		return nil
	}
	r, ok := ls.sess.ResolveRoomByName(msg.Params[0])
	if !ok {
		return nil
	}
	userID, ok := ls.sess.ResolveNick(msg.Params[1])
	if !ok {
		return nil
	}
	return ls.sess.Kick(ls.ctx, r.ID, userID)
}

// parseDurationArg accepts a Go duration string ("30m", "2h") or a bare
// number of minutes, matching the shorthand a user is most likely to type
// at an IRC prompt.
func parseDurationArg(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Minute, nil
	}
	return 0, fmt.Errorf("invalid duration: %s", s)
}
