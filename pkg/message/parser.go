package message

import "strings"

// Parse tokenizes Slack message text into a flat sequence of Spans per the
// grammar in spec.md §4.2. It never returns an error: unparseable markup
// degrades to plain text, matching the "malformed event is dropped, never
// fatal" posture carried through the whole bridge (spec.md §7) down to the
// level of a single span.
func Parse(text string) []Span {
	var spans []Span
	var textBuf strings.Builder

	flush := func() {
		if textBuf.Len() > 0 {
			spans = append(spans, Span{Kind: SpanText, Text: textBuf.String()})
			textBuf.Reset()
		}
	}

	runes := []rune(text)
	i := 0
	n := len(runes)

	for i < n {
		r := runes[i]

		switch {
		case r == '<':
			if end, span, ok := parseBracket(runes, i); ok {
				flush()
				spans = append(spans, span)
				i = end
				continue
			}

		case strings.HasPrefix(string(runes[i:min(i+3, n)]), "```"):
			if end, content, ok := findFence(runes, i+3, "```"); ok {
				flush()
				spans = append(spans, Span{Kind: SpanCode, Text: content})
				i = end
				continue
			}

		case r == '`':
			if end, content, ok := findFence(runes, i+1, "`"); ok {
				flush()
				spans = append(spans, Span{Kind: SpanCode, Text: content})
				i = end
				continue
			}

		case r == ':':
			if end, name, ok := parseEmoji(runes, i); ok {
				flush()
				spans = append(spans, Span{Kind: SpanEmoji, Text: name})
				i = end
				continue
			}

		case r == '*' || r == '_' || r == '~':
			if end, content, ok := findFence(runes, i+1, string(r)); ok && !strings.Contains(content, "\n") {
				flush()
				spans = append(spans, Span{Kind: SpanFormat, Text: string(r) + content + string(r)})
				i = end
				continue
			}
		}

		textBuf.WriteRune(r)
		i++
	}
	flush()

	return spans
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// parseBracket parses a `<...>` span starting at i (runes[i] == '<').
// Returns the index just past the closing '>' and the parsed span.
func parseBracket(runes []rune, i int) (end int, span Span, ok bool) {
	j := i + 1
	for j < len(runes) && runes[j] != '>' {
		if runes[j] == '\n' {
			return 0, Span{}, false
		}
		j++
	}
	if j >= len(runes) {
		return 0, Span{}, false
	}

	inner := string(runes[i+1 : j])
	end = j + 1

	content, label, hasLabel := splitLabel(inner)

	switch {
	case strings.HasPrefix(content, "@"):
		id := strings.TrimPrefix(content, "@")
		s := Span{Kind: SpanMention, ID: id}
		if hasLabel {
			s.Label = label
		}
		return end, s, true

	case strings.HasPrefix(content, "#"):
		id := strings.TrimPrefix(content, "#")
		s := Span{Kind: SpanRoomMention, ID: id}
		if hasLabel {
			s.Label = label
		}
		return end, s, true

	case strings.HasPrefix(content, "!"):
		key := strings.TrimPrefix(content, "!")
		s := Span{Kind: SpanSpecial, Text: key}
		if hasLabel {
			s.Label = label
		}
		return end, s, true

	case content == "" || strings.ContainsAny(content, " \t"):
		return 0, Span{}, false

	default:
		s := Span{Kind: SpanLink, URL: content}
		if hasLabel {
			s.Label = label
		}
		return end, s, true
	}
}

func splitLabel(inner string) (content, label string, hasLabel bool) {
	idx := strings.IndexByte(inner, '|')
	if idx < 0 {
		return inner, "", false
	}
	return inner[:idx], inner[idx+1:], true
}

// findFence looks for the closing delimiter starting at index i, returning
// the content between i and the delimiter and the index just past it.
func findFence(runes []rune, i int, delim string) (end int, content string, ok bool) {
	d := []rune(delim)
	for j := i; j+len(d) <= len(runes); j++ {
		if runesEqual(runes[j:j+len(d)], d) {
			return j + len(d), string(runes[i:j]), true
		}
	}
	return 0, "", false
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// parseEmoji attempts to parse a `:shortcode:` or `:shortcode::skin-tone-N:`
// run starting at i (runes[i] == ':'). A shortcode is letters, digits,
// underscore, plus, or hyphen; an empty shortcode (a bare "::" or a ":" not
// closed on the same line) is not an emoji.
func parseEmoji(runes []rune, i int) (end int, name string, ok bool) {
	j := i + 1
	start := j
	for j < len(runes) && isEmojiChar(runes[j]) {
		j++
	}
	if j == start || j >= len(runes) || runes[j] != ':' {
		return 0, "", false
	}
	name = string(runes[start:j])
	end = j + 1

	// Fold in modifier segments: ":name::modifier:" etc.
	for end < len(runes) && runes[end] == ':' {
		k := end + 1
		mstart := k
		for k < len(runes) && isEmojiChar(runes[k]) {
			k++
		}
		if k == mstart || k >= len(runes) || runes[k] != ':' {
			break
		}
		name += ":" + string(runes[mstart:k])
		end = k + 1
	}

	return end, name, true
}

func isEmojiChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '+' || r == '-':
		return true
	default:
		return false
	}
}

// CountCodeLines reports the number of newline-separated lines across all
// SpanCode spans in the sequence, used by the bridge to decide whether a
// message must be written to a file instead of delivered inline
// (spec.md §4.2, formatted-max-lines).
func CountCodeLines(spans []Span) int {
	total := 0
	for _, s := range spans {
		if s.Kind != SpanCode {
			continue
		}
		if s.Text == "" {
			continue
		}
		total += strings.Count(s.Text, "\n") + 1
	}
	return total
}
