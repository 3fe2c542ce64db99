package slackapi

import "encoding/json"

// Message is a Slack message as returned from conversations.history or
// embedded in an RTM event.
type Message struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	Channel     string `json:"channel"`
	User        string `json:"user"`
	Text        string `json:"text"`
	Ts          string `json:"ts"`
	ThreadTs    string `json:"thread_ts,omitempty"`

	// Present on a message_changed event.
	Message   *Message `json:"message,omitempty"`
	Previous  *Message `json:"previous_message,omitempty"`
	DeletedTs string   `json:"deleted_ts,omitempty"`
}

// Channel is a Slack conversation: public/private channel, MPIM, or DM.
type Channel struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsChannel  bool   `json:"is_channel"`
	IsGroup    bool   `json:"is_group"`
	IsIM       bool   `json:"is_im"`
	IsMpim     bool   `json:"is_mpim"`
	IsPrivate  bool   `json:"is_private"`
	IsArchived bool   `json:"is_archived"`
	User       string `json:"user,omitempty"` // IM peer id, set only when IsIM
	Topic      struct {
		Value string `json:"value"`
	} `json:"topic"`
	Purpose struct {
		Value string `json:"value"`
	} `json:"purpose"`
	Members []string `json:"members,omitempty"`
}

// User is a Slack workspace member.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Deleted  bool   `json:"deleted"`
	IsBot    bool   `json:"is_bot"`
	Profile  struct {
		DisplayName string `json:"display_name"`
	} `json:"profile"`
}

// DisplayName picks the name the bridge should present as an IRC nick:
// display name first, falling back to real name, falling back to the
// account name.
func (u User) DisplayName() string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Event is an envelope for an RTM frame: Type selects which other field, if
// any, is populated, since Slack's RTM protocol has no single discriminated
// union but a flat "type" string shared across dozens of payload shapes.
type Event struct {
	Type    string          `json:"type"`
	Raw     json.RawMessage `json:"-"`
	Message Message         `json:"-"`

	ReplyTo int    `json:"reply_to,omitempty"`
	OK      *bool  `json:"ok,omitempty"`
	Error   *struct {
		Msg string `json:"msg"`
	} `json:"error,omitempty"`
}

const (
	EventMessage      = "message"
	EventChannelJoin  = "channel_joined"
	EventChannelLeave = "channel_left"
	EventUserTyping   = "user_typing"
	EventReactionAdd  = "reaction_added"
	EventPresence     = "presence_change"
	EventHello        = "hello"
	EventPong         = "pong"
	EventGoodbye      = "goodbye"

	// Reconnected is synthesized locally, never sent by Slack: the bridge
	// emits it on its own event channel right after an RTM reconnect's
	// websocket dial succeeds, so downstream code can treat "came back up" as
	// an ordinary event instead of a special case threaded through every
	// call site.
	Reconnected = "_reconnected"
)
