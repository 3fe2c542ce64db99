// Package bridge is the coordinating core (C6) of spec.md §4.6: it owns the
// DORMANT→CONNECTING→SYNCING→RUNNING→RECONNECTING→EXIT state machine, the
// single per-attachment event loop, and the translation in both directions
// between Slack events and IRC lines. Every other package in this module is
// a leaf it wires together; this is the one place that knows about all of
// them at once.
package bridge

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/slackirc/bridge/pkg/bridgeerr"
	"github.com/slackirc/bridge/pkg/config"
	"github.com/slackirc/bridge/pkg/control"
	"github.com/slackirc/bridge/pkg/ircd"
	"github.com/slackirc/bridge/pkg/logger"
	"github.com/slackirc/bridge/pkg/message"
	"github.com/slackirc/bridge/pkg/metrics"
	"github.com/slackirc/bridge/pkg/session"
	"github.com/slackirc/bridge/pkg/slackapi"
	"github.com/slackirc/bridge/pkg/state"
)

// State names one node of the bridge's lifecycle state machine.
type State int

const (
	StateDormant State = iota
	StateConnecting
	StateSyncing
	StateRunning
	StateReconnecting
	StateExit
)

func (s State) String() string {
	switch s {
	case StateDormant:
		return "DORMANT"
	case StateConnecting:
		return "CONNECTING"
	case StateSyncing:
		return "SYNCING"
	case StateRunning:
		return "RUNNING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Bridge owns everything that outlives any one attached IRC client: the
// config, the listener, the persisted document, and the metrics registry.
// Everything scoped to a single attachment lives in session instead.
type Bridge struct {
	cfg    *config.Config
	log    *logger.Logger
	ircSrv *ircd.Server
	store  *state.Store
	m      *metrics.Metrics

	mu    sync.Mutex
	doc   *state.Document
	state State
}

// New builds a Bridge, loading the persisted document immediately so its
// last-seen cursors and rule tables are available the moment the first
// client attaches.
func New(cfg *config.Config, log *logger.Logger, ircSrv *ircd.Server, store *state.Store, m *metrics.Metrics) *Bridge {
	return &Bridge{
		cfg:    cfg,
		log:    log,
		ircSrv: ircSrv,
		store:  store,
		m:      m,
		doc:    store.Load(),
		state:  StateDormant,
	}
}

// setState records a transition for logging; state.String() values are
// exactly the state-machine node names of spec.md §4.6.
func (b *Bridge) setState(s State) {
	b.mu.Lock()
	old := b.state
	b.state = s
	b.mu.Unlock()
	b.log.Info("bridge state transition", "from", old, "to", s)
}

// Run accepts IRC clients one at a time, running each to completion, until
// ctx is canceled, a fatal (Config/Auth) error occurs, or accepting a client
// fails. Other session errors are logged and the bridge returns to DORMANT
// to accept the next client.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		b.setState(StateDormant)

		conn, err := b.ircSrv.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		err = b.runSession(ctx, conn)
		conn.Close()
		b.ircSrv.Release()

		if err != nil {
			if bridgeerr.IsFatal(err) {
				b.setState(StateExit)
				return err
			}
			b.log.Warn("session ended", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// runSession drives one attached client from registration through
// disconnect. It returns a fatal error only for Config/Auth failures;
// everything else unwinds to DORMANT.
func (b *Bridge) runSession(parentCtx context.Context, conn *ircd.Conn) error {
	b.setState(StateConnecting)

	password, err := ircd.Register(conn)
	if err != nil {
		return nil // client vanished mid-handshake; nothing fatal happened
	}
	log := b.log.With("nick", conn.Nick)

	token, err := b.resolveToken(password)
	if err != nil {
		conn.WriteLine(ircd.Format(ircd.ServerName, "ERROR", "configuration error: "+err.Error()))
		return err
	}
	cookie, err := readOptionalSecret(b.cfg.CookieFile)
	if err != nil {
		conn.WriteLine(ircd.Format(ircd.ServerName, "ERROR", "configuration error: "+err.Error()))
		return bridgeerr.Wrap(bridgeerr.KindConfig, "read cookie file", err)
	}

	client := slackapi.NewClient(token, cookie)

	authCtx, cancelAuth := context.WithTimeout(parentCtx, 15*time.Second)
	selfID, selfUser, err := client.AuthTest(authCtx)
	cancelAuth()
	if err != nil {
		conn.WriteLine(ircd.Format(ircd.ServerName, "ERROR", "slack authentication failed"))
		return bridgeerr.Wrap(bridgeerr.KindAuth, "auth.test", err)
	}

	sessCtx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	rtm := slackapi.NewRTM(client, log.WithComponent("rtm"))
	go rtm.Run(sessCtx)

	sess := session.New(client, rtm, log.WithComponent("session"))
	sess.SelfID = selfID
	sess.SelfNick = selfUser

	ls := &liveSession{
		b:         b,
		ctx:       sessCtx,
		conn:      conn,
		client:    client,
		rtm:       rtm,
		sess:      sess,
		rules:     newRuleEngine(),
		lastSeen:  make(map[string]string),
		joinedIRC: make(map[string]bool),
		pending:   make(map[string][]slackapi.Message),
		silenced:  make(map[string]bool),
		log:       log,
		controlCh: make(chan controlRequest, 8),
	}
	for _, n := range b.cfg.SilencedYellers {
		ls.silenced[n] = true
	}

	b.setState(StateSyncing)

	if err := sess.SyncRoster(sessCtx); err != nil {
		conn.WriteLine(ircd.Format(ircd.ServerName, "ERROR", "failed to load slack roster"))
		return nil // transient; drop back to DORMANT and let the next attach retry
	}
	if u, ok := sess.CachedUser(selfID); ok {
		sess.SelfNick = u.Nick
	}
	if err := conn.ForceRename(sess.SelfNick); err != nil {
		return nil // client vanished before the forced rename landed
	}
	log = log.With("nick", conn.Nick)
	ls.log = log

	b.mu.Lock()
	for room, ts := range b.doc.LastSeen {
		ls.lastSeen[room] = ts
	}
	ls.rules.loadFrom(b.doc, time.Now())
	b.mu.Unlock()

	autojoin := ls.autojoinRooms()
	backfills := backfillAll(sessCtx, sess, autojoin, ls.lastSeen, b.m)

	b.setState(StateRunning)

	ls.joinAutojoinRooms(autojoin)
	ls.deliverBackfill(backfills)

	ctrl := control.New(b.cfg.ControlSocketPath, ls.handleControlRequest, log.WithComponent("control"))
	if err := ctrl.Start(); err != nil {
		log.Warn("control socket failed to start", "error", err)
	}
	defer ctrl.Stop()

	err = ls.loop()

	b.mu.Lock()
	for room, ts := range ls.lastSeen {
		b.doc.LastSeen[room] = ts
	}
	annoy, autoreact := ls.rules.snapshot()
	b.doc.AnnoyRules = annoy
	b.doc.AutoreactRules = autoreact
	b.doc.SilencedYellers = b.cfg.SilencedYellers
	docCopy := *b.doc
	b.mu.Unlock()
	b.store.Save(&docCopy)

	return err
}

// resolveToken prefers an in-band PASS token (spec.md §4.5's registration
// handshake accepts one) over the configured token file, so a client can
// supply a fresh token without touching the on-disk config.
func (b *Bridge) resolveToken(password string) (string, error) {
	if password != "" {
		return password, nil
	}
	data, err := os.ReadFile(b.cfg.TokenFile)
	if err != nil {
		return "", bridgeerr.Wrap(bridgeerr.KindConfig, "read token file", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func readOptionalSecret(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// liveSession holds every piece of state scoped to one attached IRC client
// / one Slack session. It is torn down entirely when the client
// disconnects; nothing here survives to the next attachment except what
// runSession copies back into Bridge.doc.
type liveSession struct {
	b      *Bridge
	ctx    context.Context
	conn   *ircd.Conn
	client *slackapi.Client
	rtm    *slackapi.RTM
	sess   *session.Session
	rules  *ruleEngine
	log    *logger.Logger

	lastSeen  map[string]string   // room id -> newest delivered ts
	joinedIRC map[string]bool     // room id -> currently JOINed on the wire
	pending   map[string][]slackapi.Message // room id -> queued messages awaiting /join
	silenced  map[string]bool     // nick or channel name -> yelling is defanged

	controlCh chan controlRequest
}

type controlRequest struct {
	req    control.Request
	respCh chan control.Response
}

// autojoinRooms selects the rooms that should be joined on IRC the moment
// the client attaches: every IM/MPIM (they have no other way to appear),
// plus every channel when autojoin is configured and the channel isn't on
// the ignore list.
func (ls *liveSession) autojoinRooms() []*session.Room {
	var out []*session.Room
	for _, r := range ls.sess.AllRooms() {
		if r.Archived {
			continue
		}
		switch r.Kind {
		case session.KindIM, session.KindMPIM:
			out = append(out, r)
		case session.KindChannel:
			if ls.b.cfg.Autojoin && !ls.isIgnored(r.Name) {
				out = append(out, r)
			}
		}
	}
	return out
}

func (ls *liveSession) isIgnored(roomName string) bool {
	bare := strings.TrimPrefix(roomName, "#")
	for _, ig := range ls.b.cfg.IgnoredChannels {
		if strings.TrimPrefix(ig, "#") == bare {
			return true
		}
	}
	return false
}

// joinAutojoinRooms sends the IRC-side JOIN for every room selected by
// autojoinRooms, skipping IMs (which have no channel name to join).
func (ls *liveSession) joinAutojoinRooms(rooms []*session.Room) {
	for _, r := range rooms {
		if r.Kind == session.KindIM {
			continue
		}
		ls.joinRoomOnIRC(r)
	}
}

func (ls *liveSession) joinRoomOnIRC(r *session.Room) {
	if ls.joinedIRC[r.ID] {
		return
	}
	ls.joinedIRC[r.ID] = true
	r.JoinedIRC = true
	ls.conn.WriteMessage(ircd.Mask(ls.sess.SelfNick), "JOIN", r.Name)
	if r.Topic != "" {
		ls.conn.WriteLine(ircd.NumericArgs(ircd.RplTopic, ls.conn.Nick, []string{r.Name}, r.Topic))
	} else {
		ls.conn.WriteLine(ircd.NumericArgs(ircd.RplNoTopic, ls.conn.Nick, []string{r.Name}, "No topic is set"))
	}
	ls.sendNames(r)
}

func (ls *liveSession) sendNames(r *session.Room) {
	var nicks []string
	for id := range r.Members {
		if u, ok := ls.sess.CachedUser(id); ok {
			nicks = append(nicks, u.Nick)
		}
	}
	if len(nicks) > 0 {
		ls.conn.WriteLine(ircd.NumericArgs(ircd.RplNamReply, ls.conn.Nick, []string{"=", r.Name}, strings.Join(nicks, " ")))
	}
	ls.conn.WriteLine(ircd.NumericArgs(ircd.RplEndOfNames, ls.conn.Nick, []string{r.Name}, "End of /NAMES list"))
}

// deliverBackfill replays every backfilled message through the same
// rendering path as a live message, after RUNNING is entered, per spec.md
// §4.6 ("History is delivered to the IRC client only after RUNNING is
// entered, so that the client sees registration numerics before any
// backlog.").
func (ls *liveSession) deliverBackfill(results []backfillResult) {
	for _, res := range results {
		if res.Partial {
			ls.log.Warn("history backfill partial", "room", res.RoomID)
		}
		for _, m := range res.Messages {
			ls.handleIncomingMessage(m)
		}
	}
}

// loop is the single event loop for this attachment: it fans in IRC lines,
// Slack events, control-socket requests, and the rule-expiry sweep timer,
// and serializes all of their side effects through one goroutine.
func (ls *liveSession) loop() error {
	ircLines := make(chan ircd.Message, 16)
	go readLoop(ls.ctx, ls.conn, ircLines)

	sweep := time.NewTicker(sweepInterval)
	defer sweep.Stop()

	for {
		select {
		case msg, ok := <-ircLines:
			if !ok {
				return nil // client disconnected
			}
			if err := ls.handleIRCMessage(msg); err != nil {
				if err == errQuit {
					return nil
				}
				ls.log.Warn("irc command failed", "command", msg.Command, "error", err)
			}

		case evt, ok := <-ls.rtm.Events:
			if !ok {
				return ls.ctx.Err()
			}
			ls.dispatchSlack(evt)

		case creq := <-ls.controlCh:
			creq.respCh <- ls.handleControlOp(creq.req)

		case <-sweep.C:
			if ls.rules.sweep(time.Now()) {
				ls.persistRulesNow()
			}

		case <-ls.ctx.Done():
			return ls.ctx.Err()
		}
	}
}

// persistRulesNow writes the current rule tables to disk immediately,
// per spec.md §4.7 ("written ... on each mutation of the rule tables").
func (ls *liveSession) persistRulesNow() {
	ls.b.mu.Lock()
	annoy, autoreact := ls.rules.snapshot()
	ls.b.doc.AnnoyRules = annoy
	ls.b.doc.AutoreactRules = autoreact
	for room, ts := range ls.lastSeen {
		ls.b.doc.LastSeen[room] = ts
	}
	docCopy := *ls.b.doc
	ls.b.mu.Unlock()
	ls.b.store.Save(&docCopy)
}

func readLoop(ctx context.Context, conn *ircd.Conn, out chan<- ircd.Message) {
	defer close(out)
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handleControlRequest is the control.Handler passed to control.New: it
// never touches session state directly, submitting the request to the
// event loop instead, per spec.md §5 ("the control-socket handler ... submit
// mutations as messages to the loop rather than modifying directly").
func (ls *liveSession) handleControlRequest(req control.Request) control.Response {
	respCh := make(chan control.Response, 1)
	select {
	case ls.controlCh <- controlRequest{req: req, respCh: respCh}:
	case <-ls.ctx.Done():
		return control.Response{Error: "bridge shutting down"}
	}

	select {
	case resp := <-respCh:
		return resp
	case <-ls.ctx.Done():
		return control.Response{Error: "bridge shutting down"}
	}
}

func (ls *liveSession) handleControlOp(req control.Request) control.Response {
	if ls.b.m != nil {
		ls.b.m.ControlSocketRequests.Inc()
	}
	switch req.Op {
	case "send-message":
		roomID, ok := ls.resolveTarget(req.Target)
		if !ok {
			return control.Response{Error: "unknown target: " + req.Target}
		}
		text := message.RenderOutgoing(req.Text, ls.sess.ResolveNick, ls.sess.ResolveRoomName)
		ts, err := ls.sess.Post(ls.ctx, roomID, text, "")
		if err != nil {
			return control.Response{Error: err.Error()}
		}
		ls.markOwnPost(roomID, ts)
		return control.Response{OK: true}

	case "send-file":
		roomID, ok := ls.resolveTarget(req.Target)
		if !ok {
			return control.Response{Error: "unknown target: " + req.Target}
		}
		if err := ls.sess.Upload(ls.ctx, roomID, req.Path, ""); err != nil {
			return control.Response{Error: err.Error()}
		}
		return control.Response{OK: true}

	case "get-config":
		return control.Response{OK: true, Result: map[string]interface{}{
			"port":             ls.b.cfg.Port,
			"autojoin":         ls.b.cfg.Autojoin,
			"ignored_channels": ls.b.cfg.IgnoredChannels,
		}}

	default:
		return control.Response{Error: "unknown op: " + req.Op}
	}
}

func (ls *liveSession) markOwnPost(roomID, ts string) {
	if ts == "" {
		return
	}
	if ts > ls.lastSeen[roomID] {
		ls.lastSeen[roomID] = ts
	}
}

func (ls *liveSession) resolveTarget(target string) (roomID string, ok bool) {
	if strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&") {
		if t, ok := ls.sess.Threads.Lookup(target); ok {
			return t.RoomID, true
		}
		if r, ok := ls.sess.ResolveRoomByName(target); ok {
			return r.ID, true
		}
		return "", false
	}
	if peerID, ok := ls.sess.ResolveNick(target); ok {
		if r, ok := ls.sess.FindIM(peerID); ok {
			return r.ID, true
		}
	}
	return "", false
}

var errQuit = fmt.Errorf("client issued QUIT")
