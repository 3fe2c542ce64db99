package session

import (
	"sort"
	"strings"

	"github.com/slackirc/bridge/pkg/slackapi"
)

// RoomKind distinguishes the three room shapes of spec.md §3 behind the
// single Room abstraction.
type RoomKind int

const (
	KindChannel RoomKind = iota
	KindMPIM
	KindIM
)

// roomFromChannel converts a raw slackapi.Channel into the Room shape the
// bridge operates on: an IRC-facing name and a capability set, computed
// once at cache-fill time rather than re-derived on every access.
func roomFromChannel(ch slackapi.Channel, nickOf func(id string) string) *Room {
	r := &Room{
		ID:      ch.ID,
		Topic:   ch.Topic.Value,
		Purpose: ch.Purpose.Value,
		Members: make(map[string]bool, len(ch.Members)),
	}
	for _, id := range ch.Members {
		r.Members[id] = true
	}

	switch {
	case ch.IsIM:
		r.Kind = KindIM
		r.PeerID = ch.User
		r.Name = "" // IMs have no IRC channel; they map to private-message queries
		r.Capabilities = map[Capability]bool{
			CapWrite: true, CapHistory: true, CapTyping: true, CapListMembers: true, CapMarkRead: true,
		}

	case ch.IsMpim:
		r.Kind = KindMPIM
		r.Name = mpimName(r.Members, nickOf)
		r.Capabilities = map[Capability]bool{
			CapRead: true, CapWrite: true, CapHistory: true, CapTyping: true, CapReact: true,
			CapListMembers: true, CapMarkRead: true,
		}

	default:
		r.Kind = KindChannel
		r.Name = "#" + ch.Name
		r.Capabilities = map[Capability]bool{
			CapRead: true, CapWrite: true, CapTopic: true, CapInvite: true,
			CapKick: true, CapReact: true, CapHistory: true, CapTyping: true, CapThreads: true,
			CapListMembers: true, CapMarkRead: true,
		}
	}

	r.Archived = ch.IsArchived
	return r
}

// mpimName builds the "&"-prefixed, comma-joined sorted-nick name spec.md
// §3 specifies for an MPIM's IRC channel.
func mpimName(members map[string]bool, nickOf func(id string) string) string {
	nicks := make([]string, 0, len(members))
	for id := range members {
		if n := nickOf(id); n != "" {
			nicks = append(nicks, n)
		}
	}
	sort.Strings(nicks)
	return "&" + strings.Join(nicks, ",")
}

// HasCapability is defined on *Room in types.go; Capabilities is the map
// populated above.
