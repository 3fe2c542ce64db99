// Package session turns the raw slackapi transport into workspace state: a
// roster of users and rooms kept fresh on demand, plus the handful of
// actions (post, upload, history, mark, typing, react) the bridge core
// issues against them.
package session

import "time"

// User mirrors the subset of a Slack user record the bridge cares about.
type User struct {
	ID       string
	Nick     string // IRC-safe nick derived from the Slack display name
	RealName string
	IsBot    bool
	Deleted  bool
}

// Capability is a single thing a Room can be asked to do. Not every room
// supports every capability: a DM has no Topic, an announcement-only
// channel may not accept Write from this user.
type Capability int

const (
	CapRead Capability = iota
	CapWrite
	CapTopic
	CapInvite
	CapKick
	CapReact
	CapThreads
	CapTyping
	CapListMembers
	CapHistory
	CapMarkRead
)

// Room is a Slack conversation as the bridge sees it: a stable identity,
// an IRC-facing name, its member set, and the capabilities it supports.
// Public/private channels, MPIMs, and single DMs are all Rooms; a reply
// thread is not a Room but a Thread that points at its parent Room.
type Room struct {
	ID           string
	Kind         RoomKind
	Name         string // IRC channel name, e.g. "#general"; empty for an IM
	Topic        string
	Purpose      string
	PeerID       string          // IM peer's Slack user id; empty otherwise
	Members      map[string]bool // Slack user id -> present
	Capabilities map[Capability]bool
	Archived     bool

	LastReadTS  string
	JoinedSlack bool // subscribed on Slack (member of the conversation)
	JoinedIRC   bool // IRC-side /join state; independent of JoinedSlack
}

// HasCapability reports whether the room supports cap.
func (r *Room) HasCapability(cap Capability) bool {
	return r.Capabilities[cap]
}

// Thread is a materialized reply thread, exposed to IRC as its own
// synthetic channel so replies don't interleave with the parent room.
type Thread struct {
	RoomID   string
	ParentTS string
	Channel  string // synthetic IRC channel name, e.g. "#general-0x1a2b3c4d"
	Created  time.Time
}
