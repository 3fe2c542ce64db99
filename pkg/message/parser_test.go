package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlainText(t *testing.T) {
	spans := Parse("hello there")
	require.Len(t, spans, 1)
	assert.Equal(t, SpanText, spans[0].Kind)
	assert.Equal(t, "hello there", spans[0].Text)
}

func TestParseMentionWithAndWithoutLabel(t *testing.T) {
	spans := Parse("hey <@U123>, see <@U456|bob>")
	var mentions []Span
	for _, s := range spans {
		if s.Kind == SpanMention {
			mentions = append(mentions, s)
		}
	}
	require.Len(t, mentions, 2)
	assert.Equal(t, "U123", mentions[0].ID)
	assert.Equal(t, "", mentions[0].Label)
	assert.Equal(t, "U456", mentions[1].ID)
	assert.Equal(t, "bob", mentions[1].Label)
}

func TestParseRoomMention(t *testing.T) {
	spans := Parse("join <#C999|general>")
	found := false
	for _, s := range spans {
		if s.Kind == SpanRoomMention {
			found = true
			assert.Equal(t, "C999", s.ID)
			assert.Equal(t, "general", s.Label)
		}
	}
	assert.True(t, found)
}

func TestParseSpecial(t *testing.T) {
	spans := Parse("<!here> everyone look")
	require.NotEmpty(t, spans)
	assert.Equal(t, SpanSpecial, spans[0].Kind)
	assert.Equal(t, "here", spans[0].Text)
}

func TestParseLinkWithAndWithoutLabel(t *testing.T) {
	spans := Parse("see <https://example.com> and <https://example.com|docs>")
	var links []Span
	for _, s := range spans {
		if s.Kind == SpanLink {
			links = append(links, s)
		}
	}
	require.Len(t, links, 2)
	assert.Equal(t, "https://example.com", links[0].URL)
	assert.Equal(t, "", links[0].Label)
	assert.Equal(t, "https://example.com", links[1].URL)
	assert.Equal(t, "docs", links[1].Label)
}

func TestParseEmoji(t *testing.T) {
	spans := Parse("nice :tada: work")
	found := false
	for _, s := range spans {
		if s.Kind == SpanEmoji {
			found = true
			assert.Equal(t, "tada", s.Text)
		}
	}
	assert.True(t, found)
}

func TestParseEmojiWithModifier(t *testing.T) {
	spans := Parse(":+1::skin-tone-2:")
	require.Len(t, spans, 1)
	assert.Equal(t, SpanEmoji, spans[0].Kind)
	assert.Equal(t, "+1:skin-tone-2", spans[0].Text)
}

func TestParseBareColonIsText(t *testing.T) {
	spans := Parse("time is 10:30 now")
	require.Len(t, spans, 1)
	assert.Equal(t, SpanText, spans[0].Kind)
	assert.Equal(t, "time is 10:30 now", spans[0].Text)
}

func TestParseFencedCode(t *testing.T) {
	spans := Parse("before ```line1\nline2``` after")
	var code *Span
	for i := range spans {
		if spans[i].Kind == SpanCode {
			code = &spans[i]
		}
	}
	require.NotNil(t, code)
	assert.Equal(t, "line1\nline2", code.Text)
}

func TestParseInlineCode(t *testing.T) {
	spans := Parse("run `make test` now")
	var code *Span
	for i := range spans {
		if spans[i].Kind == SpanCode {
			code = &spans[i]
		}
	}
	require.NotNil(t, code)
	assert.Equal(t, "make test", code.Text)
}

func TestParseFormatRuns(t *testing.T) {
	spans := Parse("this is *bold* and _italic_ and ~strike~")
	var kinds []SpanKind
	for _, s := range spans {
		kinds = append(kinds, s.Kind)
	}
	assert.Contains(t, kinds, SpanFormat)
}

func TestUnterminatedBracketIsLiteralText(t *testing.T) {
	spans := Parse("a < b and c > d")
	require.Len(t, spans, 1)
	assert.Equal(t, SpanText, spans[0].Kind)
}

func TestCountCodeLinesAcrossSpans(t *testing.T) {
	spans := Parse("```a\nb\nc```")
	assert.Equal(t, 3, CountCodeLines(spans))
}

func TestCountCodeLinesIgnoresNonCodeSpans(t *testing.T) {
	spans := Parse("just text\nwith newlines\nbut no fences")
	assert.Equal(t, 0, CountCodeLines(spans))
}
