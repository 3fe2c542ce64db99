package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRoster struct {
	nicks   map[string]string
	members map[string]bool
	rooms   map[string]string
}

func (f *fakeRoster) UserNick(id string) (string, bool) {
	n, ok := f.nicks[id]
	return n, ok
}

func (f *fakeRoster) IsMember(id string) bool {
	return f.members[id]
}

func (f *fakeRoster) RoomName(id string) (string, bool) {
	n, ok := f.rooms[id]
	return n, ok
}

func TestRenderMentionOfMemberGetsAtPrefix(t *testing.T) {
	roster := &fakeRoster{
		nicks:   map[string]string{"U1": "alice"},
		members: map[string]bool{"U1": true},
	}
	out := Render(Parse("hi <@U1>"), roster, false)
	assert.Equal(t, "hi @alice", out)
}

func TestRenderMentionOfNonMemberHasNoAtPrefix(t *testing.T) {
	roster := &fakeRoster{
		nicks:   map[string]string{"U2": "bob"},
		members: map[string]bool{},
	}
	out := Render(Parse("cc <@U2>"), roster, false)
	assert.Equal(t, "cc bob", out)
}

func TestRenderUnknownMentionFallsBackToID(t *testing.T) {
	roster := &fakeRoster{nicks: map[string]string{}, members: map[string]bool{}}
	out := Render(Parse("<@U9>"), roster, false)
	assert.Equal(t, "U9", out)
}

func TestRenderRoomMention(t *testing.T) {
	roster := &fakeRoster{rooms: map[string]string{"C1": "general"}}
	out := Render(Parse("join <#C1|ignored>"), roster, false)
	assert.Equal(t, "join #general", out)
}

func TestRenderSpecialNotSilenced(t *testing.T) {
	roster := &fakeRoster{}
	out := Render(Parse("<!channel>"), roster, false)
	assert.Equal(t, "@channel", out)
}

func TestRenderSpecialSilenced(t *testing.T) {
	roster := &fakeRoster{}
	out := Render(Parse("<!channel>"), roster, true)
	assert.Equal(t, "yelling channel", out)
}

func TestRenderLinkHeuristic(t *testing.T) {
	roster := &fakeRoster{}

	assert.Equal(t, "https://example.com",
		Render(Parse("<https://example.com>"), roster, false))

	assert.Equal(t, "https://example.com",
		Render(Parse("<https://example.com|https://example.com>"), roster, false))

	assert.Equal(t, "LINK https://example.com (docs)",
		Render(Parse("<https://example.com|docs>"), roster, false))
}

func TestRenderEmojiKnownAndUnknown(t *testing.T) {
	roster := &fakeRoster{}
	assert.Equal(t, "🎉", Render(Parse(":tada:"), roster, false))
	assert.Equal(t, ":some_custom_emoji:", Render(Parse(":some_custom_emoji:"), roster, false))
}

func TestRenderCodePassthrough(t *testing.T) {
	roster := &fakeRoster{}
	assert.Equal(t, "`inline`", Render(Parse("`inline`"), roster, false))
	assert.Equal(t, "```a\nb```", Render(Parse("```a\nb```"), roster, false))
}

func resolveNickFixture(nick string) (string, bool) {
	if nick == "alice" {
		return "U1", true
	}
	return "", false
}

func resolveRoomFixture(name string) (string, bool) {
	if name == "general" {
		return "C1", true
	}
	return "", false
}

func TestRenderOutgoingResolvesKnownNick(t *testing.T) {
	out := RenderOutgoing("hey @alice and @stranger", resolveNickFixture, resolveRoomFixture)
	assert.Equal(t, "hey <@U1> and @stranger", out)
}

func TestRenderOutgoingResolvesNickFollowedByColon(t *testing.T) {
	out := RenderOutgoing("alice: hi there", resolveNickFixture, resolveRoomFixture)
	assert.Equal(t, "<@U1>: hi there", out)

	out = RenderOutgoing("stranger: hi there", resolveNickFixture, resolveRoomFixture)
	assert.Equal(t, "stranger: hi there", out)
}

func TestRenderOutgoingResolvesKnownRoom(t *testing.T) {
	out := RenderOutgoing("see #general for details", resolveNickFixture, resolveRoomFixture)
	assert.Equal(t, "see <#C1|general> for details", out)

	out = RenderOutgoing("see #nonexistent for details", resolveNickFixture, resolveRoomFixture)
	assert.Equal(t, "see #nonexistent for details", out)
}

func TestParseRenderRoundTripPreservesPlainText(t *testing.T) {
	roster := &fakeRoster{}
	text := "just some plain words with no markup at all"
	assert.Equal(t, text, Render(Parse(text), roster, false))
}
