// Package diff computes a minimal word-level difference between an original
// and an edited message, for rendering Slack's message_changed events as a
// short "before → after" IRC notification instead of re-sending the whole
// message.
package diff

import "strings"

// Result describes the smallest contiguous run of words that changed
// between two strings, plus one word of context on either side where
// available.
type Result struct {
	Changed bool

	PrefixWord string // last unchanged word before the edit, if any
	Old        string // changed words from the original
	New        string // changed words from the edit
	SuffixWord string // first unchanged word after the edit, if any
}

// Diff compares a and b word by word. Whitespace runs are normalized: the
// comparison is on fields, not raw bytes, which matches how the edit
// announcement is rendered (single-spaced) rather than how it is stored.
func Diff(a, b string) Result {
	wa := strings.Fields(a)
	wb := strings.Fields(b)

	prefix := commonPrefixLen(wa, wb)
	suffix := commonSuffixLen(wa[prefix:], wb[prefix:])

	oldEnd := len(wa) - suffix
	newEnd := len(wb) - suffix

	if prefix >= oldEnd && prefix >= newEnd {
		// Every word matched: a and b are equal under field-normalization.
		return Result{Changed: false}
	}

	r := Result{
		Changed: true,
		Old:     strings.Join(wa[prefix:oldEnd], " "),
		New:     strings.Join(wb[prefix:newEnd], " "),
	}
	if prefix > 0 {
		r.PrefixWord = wa[prefix-1]
	}
	if oldEnd < len(wa) {
		r.SuffixWord = wa[oldEnd]
	}
	return r
}

func commonPrefixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func commonSuffixLen(a, b []string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return i
}

// String renders the result as the bracketed "old → new" form the bridge
// posts to IRC, with the changed span wrapped in "**...**" and available
// context words on either side, unwrapped. It returns "" when Changed is
// false.
func (r Result) String() string {
	if !r.Changed {
		return ""
	}
	var b strings.Builder
	if r.PrefixWord != "" {
		b.WriteString(r.PrefixWord)
		b.WriteByte(' ')
	}
	b.WriteString("**")
	b.WriteString(r.Old)
	b.WriteString(" → ")
	b.WriteString(r.New)
	b.WriteString("**")
	if r.SuffixWord != "" {
		b.WriteByte(' ')
		b.WriteString(r.SuffixWord)
	}
	return b.String()
}
