// Package message tokenizes Slack's internal markup into a typed span
// sequence and renders it to IRC-safe text, and the reverse for outgoing
// IRC text.
package message

// SpanKind identifies the grammar production a Span was parsed from.
type SpanKind int

const (
	// SpanText is plain, unescaped text passed through verbatim.
	SpanText SpanKind = iota
	// SpanMention is a `<@id|label>` user reference.
	SpanMention
	// SpanRoomMention is a `<#id|label>` channel reference.
	SpanRoomMention
	// SpanSpecial is a `<!here|channel|everyone|subteam>` broadcast token.
	SpanSpecial
	// SpanLink is a `<url|label>` link.
	SpanLink
	// SpanEmoji is a `:shortcode:` emoji reference.
	SpanEmoji
	// SpanFormat is a `*bold*`/`_italic_`/`~strike~` run; passed through.
	SpanFormat
	// SpanCode is an inline `` ` `` or fenced ``` code run; passed through.
	SpanCode
)

// Span is one token of a parsed Slack message.
type Span struct {
	Kind  SpanKind
	Text  string // raw text for SpanText/SpanFormat/SpanCode, shortcode for SpanEmoji, key for SpanSpecial
	ID    string // Slack id for SpanMention/SpanRoomMention
	Label string // optional label for SpanMention/SpanRoomMention/SpanLink
	URL   string // URL for SpanLink
}
