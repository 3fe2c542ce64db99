package message

import (
	"strings"
)

// Roster is the lookup surface Render needs from session state. It is kept
// minimal and defined here, rather than imported from the session package,
// so message stays a leaf package with no dependency on the bridge's
// runtime state.
type Roster interface {
	// UserNick returns the IRC nick for a Slack user id, if known.
	UserNick(id string) (nick string, ok bool)
	// IsMember reports whether the Slack user id is present in the room the
	// message is being rendered for.
	IsMember(id string) bool
	// RoomName returns the IRC channel name for a Slack room id, if known.
	RoomName(id string) (name string, ok bool)
}

var specialLabels = map[string]string{
	"here":     "@here",
	"channel":  "@channel",
	"everyone": "@everyone",
}

// Render renders a parsed span sequence to IRC-safe text. silenced is true
// when the message's sender or its room is on the configured
// silenced-yellers list, in which case broadcast tokens (<!here>,
// <!channel>, <!everyone>) are rewritten to "yelling <word>" instead of
// echoing a ping-triggering @token.
func Render(spans []Span, roster Roster, silenced bool) string {
	var b strings.Builder
	for _, s := range spans {
		switch s.Kind {
		case SpanText, SpanFormat:
			b.WriteString(s.Text)

		case SpanCode:
			if strings.Contains(s.Text, "\n") {
				b.WriteString("```")
				b.WriteString(s.Text)
				b.WriteString("```")
			} else {
				b.WriteByte('`')
				b.WriteString(s.Text)
				b.WriteByte('`')
			}

		case SpanMention:
			b.WriteString(renderMention(s, roster))

		case SpanRoomMention:
			if name, ok := roster.RoomName(s.ID); ok {
				if !strings.HasPrefix(name, "#") && !strings.HasPrefix(name, "&") {
					name = "#" + name
				}
				b.WriteString(name)
			} else if s.Label != "" {
				b.WriteString("#" + s.Label)
			} else {
				b.WriteString("#" + s.ID)
			}

		case SpanSpecial:
			b.WriteString(renderSpecial(s.Text, silenced))

		case SpanLink:
			b.WriteString(renderLink(s))

		case SpanEmoji:
			if glyph, ok := emojiGlyph(s.Text); ok {
				b.WriteString(glyph)
			} else {
				b.WriteString(":" + s.Text + ":")
			}
		}
	}
	return b.String()
}

func renderMention(s Span, roster Roster) string {
	nick, ok := roster.UserNick(s.ID)
	if !ok {
		if s.Label != "" {
			nick = s.Label
		} else {
			nick = s.ID
		}
	}
	if roster.IsMember(s.ID) {
		return "@" + nick
	}
	return nick
}

func renderSpecial(key string, silenced bool) string {
	label, ok := specialLabels[key]
	if !ok {
		label = "@" + key // subteam handle, rendered verbatim
	}
	if silenced {
		return "yelling " + strings.TrimPrefix(label, "@")
	}
	return label
}

// renderLink applies the documented URL/label heuristic: when the label is
// absent, or equal to the URL (with or without a trailing slash), the URL is
// rendered alone; otherwise both are shown as "LINK <url> (<label>)".
func renderLink(s Span) string {
	if s.Label == "" || s.Label == s.URL || s.Label == s.URL+"/" {
		return s.URL
	}
	return "LINK " + s.URL + " (" + s.Label + ")"
}

// RenderOutgoing converts IRC-typed text from an attached client into Slack
// markup before it is posted, per spec.md §4.2's reverse-translation rules:
// a nick preceded by '@' or followed by ':' becomes "<@id>" if it matches a
// known user, and a "#name" token becomes "<#id|name>" if it matches a known
// room. resolveNick maps a bare nick (without the leading '@') to a Slack
// user id; resolveRoom maps a bare room name (without the leading '#') to a
// Slack room id. Unmatched tokens are left as plain text rather than
// dropped.
func RenderOutgoing(text string, resolveNick func(nick string) (id string, ok bool), resolveRoom func(name string) (id string, ok bool)) string {
	var b strings.Builder
	runes := []rune(text)
	i := 0
	n := len(runes)

	for i < n {
		switch {
		case runes[i] == '@':
			j := i + 1
			for j < n && isNickChar(runes[j]) {
				j++
			}
			if j > i+1 {
				nick := string(runes[i+1 : j])
				if id, ok := resolveNick(nick); ok {
					b.WriteString("<@" + id + ">")
					i = j
					continue
				}
			}

		case runes[i] == '#':
			j := i + 1
			for j < n && isNickChar(runes[j]) {
				j++
			}
			if j > i+1 {
				name := string(runes[i+1 : j])
				if id, ok := resolveRoom(name); ok {
					b.WriteString("<#" + id + "|" + name + ">")
					i = j
					continue
				}
			}

		case isNickChar(runes[i]) && (i == 0 || !isNickChar(runes[i-1])):
			j := i
			for j < n && isNickChar(runes[j]) {
				j++
			}
			if j < n && runes[j] == ':' {
				nick := string(runes[i:j])
				if id, ok := resolveNick(nick); ok {
					b.WriteString("<@" + id + ">")
					i = j
					continue
				}
			}
		}

		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

func isNickChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-' || r == '[' || r == ']' || r == '\\' || r == '^' || r == '{' || r == '}':
		return true
	default:
		return false
	}
}
