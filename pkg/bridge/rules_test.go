package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slackirc/bridge/pkg/state"
)

func TestRuleEngineAnnoyLifecycle(t *testing.T) {
	e := newRuleEngine()
	now := time.Now()

	assert.False(t, e.shouldAnnoy("U1", now))

	e.addAnnoy("U1", time.Hour)
	assert.True(t, e.shouldAnnoy("U1", now))
	// debounced: a second typing event within 3s must not re-fire
	assert.False(t, e.shouldAnnoy("U1", now.Add(time.Second)))
	assert.True(t, e.shouldAnnoy("U1", now.Add(4*time.Second)))

	assert.True(t, e.dropAnnoy("U1"))
	assert.False(t, e.dropAnnoy("U1"))
	assert.False(t, e.shouldAnnoy("U1", now.Add(10*time.Second)))
}

func TestRuleEngineSweepDropsExpired(t *testing.T) {
	e := newRuleEngine()
	now := time.Now()
	e.addAnnoy("U1", time.Minute)
	e.addAutoreact("U2", "", 1.0, "thumbsup", time.Minute)

	changed := e.sweep(now.Add(2 * time.Minute))
	assert.True(t, changed)
	assert.Empty(t, e.listAnnoy())
	assert.Empty(t, e.listAutoreact())

	// nothing left to drop on the next sweep
	assert.False(t, e.sweep(now.Add(3*time.Minute)))
}

func TestRuleEngineAutoreactRoomScope(t *testing.T) {
	e := newRuleEngine()
	now := time.Now()
	e.addAutoreact("U1", "C1", 1.0, "eyes", time.Hour)

	assert.Equal(t, []string{"eyes"}, e.rollAutoreacts("U1", "C1", now))
	assert.Empty(t, e.rollAutoreacts("U1", "C2", now))
	assert.Empty(t, e.rollAutoreacts("U2", "C1", now))
}

func TestRuleEngineAutoreactGlobalScope(t *testing.T) {
	e := newRuleEngine()
	now := time.Now()
	e.addAutoreact("U1", "", 1.0, "tada", time.Hour)

	assert.Equal(t, []string{"tada"}, e.rollAutoreacts("U1", "C1", now))
	assert.Equal(t, []string{"tada"}, e.rollAutoreacts("U1", "C2", now))
}

func TestRuleEngineSnapshotAndLoadFrom(t *testing.T) {
	e := newRuleEngine()
	now := time.Now()
	e.addAnnoy("U1", time.Hour)
	e.addAutoreact("U2", "C1", 1.0, "fire", time.Hour)

	annoy, autoreact := e.snapshot()
	require.Len(t, annoy, 1)
	require.Len(t, autoreact, 1)

	doc := &state.Document{AnnoyRules: annoy, AutoreactRules: autoreact}

	reloaded := newRuleEngine()
	reloaded.loadFrom(doc, now)
	assert.True(t, reloaded.shouldAnnoy("U1", now))
	assert.Equal(t, []string{"fire"}, reloaded.rollAutoreacts("U2", "C1", now))
}

func TestRuleEngineLoadFromSkipsExpired(t *testing.T) {
	now := time.Now()
	doc := &state.Document{
		AnnoyRules: []state.AnnoyRule{{TargetUser: "U1", Expiry: now.Add(-time.Minute)}},
	}
	e := newRuleEngine()
	e.loadFrom(doc, now)
	assert.False(t, e.shouldAnnoy("U1", now))
}
