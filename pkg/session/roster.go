package session

import "github.com/slackirc/bridge/pkg/message"

// RoomRoster adapts a Session and a specific room to the message.Roster
// interface the renderer needs: nick lookups are workspace-wide, but
// membership is scoped to the one room a message is being rendered for.
type RoomRoster struct {
	sess   *Session
	roomID string
}

// Roster returns a message.Roster scoped to roomID.
func (s *Session) Roster(roomID string) *RoomRoster {
	return &RoomRoster{sess: s, roomID: roomID}
}

var _ message.Roster = (*RoomRoster)(nil)

func (r *RoomRoster) UserNick(id string) (string, bool) {
	u, ok := r.sess.Users.get(id)
	if !ok {
		return "", false
	}
	return u.Nick, true
}

func (r *RoomRoster) IsMember(id string) bool {
	room, ok := r.sess.Rooms.get(r.roomID)
	if !ok {
		return false
	}
	return room.Members[id]
}

func (r *RoomRoster) RoomName(id string) (string, bool) {
	room, ok := r.sess.Rooms.get(id)
	if !ok {
		return "", false
	}
	return room.Name, true
}

// ResolveNick looks up a Slack user id by IRC nick, for outgoing-message
// rendering (message.RenderOutgoing).
func (s *Session) ResolveNick(nick string) (string, bool) {
	u, ok := s.Users.getByName(nick)
	if !ok {
		return "", false
	}
	return u.ID, true
}

// ResolveRoomName looks up a Slack room id by its bare IRC channel name
// (without the leading '#'), for outgoing-message rendering
// (message.RenderOutgoing).
func (s *Session) ResolveRoomName(name string) (string, bool) {
	r, ok := s.ResolveRoomByName("#" + name)
	if !ok {
		return "", false
	}
	return r.ID, true
}
