package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadMapObserveIsIdempotent(t *testing.T) {
	m := NewThreadMap()

	t1, created := m.Observe("C1", "#general", "111.222")
	assert.True(t, created)
	require.NotNil(t, t1)
	assert.Equal(t, "C1", t1.RoomID)
	assert.Equal(t, "111.222", t1.ParentTS)

	t2, created := m.Observe("C1", "#general", "111.222")
	assert.False(t, created)
	assert.Same(t, t1, t2)
}

func TestThreadMapDistinctParentsGetDistinctChannels(t *testing.T) {
	m := NewThreadMap()
	a, _ := m.Observe("C1", "#general", "111.222")
	b, _ := m.Observe("C1", "#general", "333.444")
	assert.NotEqual(t, a.Channel, b.Channel)
}

func TestThreadMapLookupAndByKey(t *testing.T) {
	m := NewThreadMap()
	created, _ := m.Observe("C1", "#general", "111.222")

	byChan, ok := m.Lookup(created.Channel)
	require.True(t, ok)
	assert.Equal(t, created, byChan)

	byKey, ok := m.ByKey("C1", "111.222")
	require.True(t, ok)
	assert.Equal(t, created, byKey)

	_, ok = m.Lookup("#nonexistent-0x0")
	assert.False(t, ok)
}

func TestThreadMapLeftRejoinCycle(t *testing.T) {
	m := NewThreadMap()
	th, _ := m.Observe("C1", "#general", "111.222")

	assert.False(t, m.HasLeft(th.Channel))
	m.MarkLeft(th.Channel)
	assert.True(t, m.HasLeft(th.Channel))

	m.MarkRejoined(th.Channel)
	assert.False(t, m.HasLeft(th.Channel))
}

func TestSyntheticChannelNameFallsBackWhenRoomNameEmpty(t *testing.T) {
	name := syntheticChannelName("", "111.222")
	assert.True(t, len(name) > len("#thread-0x"))
	assert.Contains(t, name, "#thread-0x")
}
