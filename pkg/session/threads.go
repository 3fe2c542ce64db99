package session

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
)

// threadKey identifies a thread by its parent room and timestamp, per
// spec.md §3 ("A thread is identified by (parent-room-id, parent-ts)").
type threadKey struct {
	RoomID   string
	ParentTS string
}

// ThreadMap tracks materialized synthetic IRC channels for observed
// threads, plus the per-session set of threads the user has explicitly
// /part'ed (spec.md §3's "left-threads set").
type ThreadMap struct {
	mu      sync.RWMutex
	byKey   map[threadKey]*Thread
	byChan  map[string]threadKey
	left    map[threadKey]bool
}

func NewThreadMap() *ThreadMap {
	return &ThreadMap{
		byKey:  make(map[threadKey]*Thread),
		byChan: make(map[string]threadKey),
		left:   make(map[threadKey]bool),
	}
}

// Observe materializes the synthetic channel for (roomID, parentTS) on
// first call and returns the existing one on subsequent calls, satisfying
// invariant 2 of spec.md §3: "A synthetic thread channel exists iff its
// parent message has been observed in this session." roomName is used only
// to build the channel name; it is not stored beyond that.
func (m *ThreadMap) Observe(roomID, roomName, parentTS string) (*Thread, bool) {
	key := threadKey{RoomID: roomID, ParentTS: parentTS}

	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.byKey[key]; ok {
		return t, false
	}

	t := &Thread{
		RoomID:   roomID,
		ParentTS: parentTS,
		Channel:  syntheticChannelName(roomName, parentTS),
	}
	m.byKey[key] = t
	m.byChan[t.Channel] = key
	return t, true
}

// Lookup returns the thread for a synthetic channel name, if any.
func (m *ThreadMap) Lookup(channel string) (*Thread, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byChan[channel]
	if !ok {
		return nil, false
	}
	return m.byKey[key], true
}

// ByKey returns the thread for (roomID, parentTS), if it has been observed.
func (m *ThreadMap) ByKey(roomID, parentTS string) (*Thread, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.byKey[threadKey{RoomID: roomID, ParentTS: parentTS}]
	return t, ok
}

// MarkLeft records that the IRC client /part'ed this thread's synthetic
// channel: the channel disappears from the IRC view, per spec.md §3, but
// Slack-side the thread subscription is untouched.
func (m *ThreadMap) MarkLeft(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.byChan[channel]; ok {
		m.left[key] = true
	}
}

// MarkRejoined clears a prior /part, so a new reply auto-joins the client
// again.
func (m *ThreadMap) MarkRejoined(channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key, ok := m.byChan[channel]; ok {
		delete(m.left, key)
	}
}

// HasLeft reports whether the client explicitly parted this thread's
// channel, suppressing the auto-join-on-new-reply behavior of spec.md §3.
func (m *ThreadMap) HasLeft(channel string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.byChan[channel]
	return ok && m.left[key]
}

// syntheticChannelName builds a collision-free IRC channel name from the
// parent room's IRC name and a short hash of the parent ts, per spec.md §3
// ("a short hash of the parent timestamp, collision-free within the
// session").
func syntheticChannelName(roomName, parentTS string) string {
	base := strings.TrimPrefix(roomName, "#")
	if base == "" {
		base = "thread"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(parentTS))
	return fmt.Sprintf("#%s-0x%x", base, h.Sum32())
}
