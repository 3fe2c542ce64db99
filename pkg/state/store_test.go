package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slackirc/bridge/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Output: "stderr", Component: "test"})
	require.NoError(t, err)
	return l
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	s := New(path, testLogger(t))

	doc := &Document{
		LastSeen:        map[string]string{"C01": "1700000000.000100"},
		AnnoyRules:      []AnnoyRule{{TargetUser: "U01", Expiry: time.Now().Add(time.Minute)}},
		AutoreactRules:  []AutoreactRule{{TargetUser: "U02", Probability: 0.5, Reaction: "tada", Expiry: time.Now().Add(time.Minute)}},
		SilencedYellers: []string{"rose"},
	}
	s.Save(doc)

	loaded := s.Load()
	assert.Equal(t, "1700000000.000100", loaded.LastSeen["C01"])
	assert.Len(t, loaded.AnnoyRules, 1)
	assert.Equal(t, "U01", loaded.AnnoyRules[0].TargetUser)
	assert.Len(t, loaded.AutoreactRules, 1)
	assert.Equal(t, CurrentSchemaVersion, loaded.SchemaVersion)
}

func TestLoadMissingFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "missing.json"), testLogger(t))

	doc := s.Load()
	assert.Empty(t, doc.LastSeen)
	assert.Equal(t, CurrentSchemaVersion, doc.SchemaVersion)
}

func TestLoadCorruptFileStartsFreshWithWarning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte("not a valid length-prefixed document"), 0o600))

	s := New(path, testLogger(t))
	doc := s.Load()
	assert.Empty(t, doc.LastSeen)
}
