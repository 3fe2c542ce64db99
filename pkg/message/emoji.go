package message

// emojiTable maps a subset of Slack's standard shortcode names to the
// unicode glyph IRC clients can render directly. Anything not in this table
// is rendered back out as ":shortcode:" literally rather than dropped, so an
// unmapped custom emoji is still legible.
var emojiTable = map[string]string{
	"smile":          "🙂",
	"simple_smile":   "🙂",
	"slightly_smiling_face": "🙂",
	"grinning":       "😀",
	"laughing":       "😆",
	"joy":            "😂",
	"wink":           "😉",
	"heart":          "❤️",
	"thumbsup":       "👍",
	"+1":             "👍",
	"thumbsdown":     "👎",
	"-1":             "👎",
	"tada":           "🎉",
	"fire":           "🔥",
	"eyes":           "👀",
	"thinking_face":  "🤔",
	"thinking":       "🤔",
	"rofl":           "🤣",
	"sob":            "😭",
	"clap":           "👏",
	"wave":           "👋",
	"pray":           "🙏",
	"100":            "💯",
	"white_check_mark": "✅",
	"x":              "❌",
	"warning":        "⚠️",
	"rocket":         "🚀",
	"eyes_exclamation": "👀",
	"shrug":          "🤷",
	"facepalm":       "🤦",
	"point_right":    "👉",
	"point_left":     "👈",
	"tada_party":     "🎉",
	"bug":            "🐛",
	"bulb":           "💡",
	"zap":            "⚡",
	"beers":          "🍻",
	"coffee":         "☕",
	"pizza":          "🍕",
	"partyparrot":    "🦜",
}

// emojiGlyph resolves a shortcode (the first colon-delimited segment; any
// ":skin-tone-N:" or similar trailing modifier is ignored for lookup
// purposes) to its unicode glyph. ok is false for unmapped shortcodes.
func emojiGlyph(shortcode string) (string, bool) {
	name := shortcode
	for i, r := range shortcode {
		if r == ':' {
			name = shortcode[:i]
			break
		}
	}
	g, ok := emojiTable[name]
	return g, ok
}
