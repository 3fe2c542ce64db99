package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToStdout(t *testing.T) {
	l, err := New(Config{Component: "test"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewWritesJSONWithComponent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")

	l, err := New(Config{Output: path, Format: "json", Component: "bridge"})
	require.NoError(t, err)

	l.Info("hello", "room", "#general")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "bridge", line["component"])
	assert.Equal(t, "#general", line["room"])
	assert.Equal(t, "hello", line["msg"])
}

func TestNewAppliesLogSuffixToFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")

	_, err := New(Config{Output: path, Suffix: "-debug", Component: "x"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "bridge-debug.log"))
	assert.NoError(t, err)
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, parseLevel("info"), parseLevel("bogus"))
}

func TestWithComponentDerivesNewTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")

	l, err := New(Config{Output: path, Format: "json", Component: "bridge"})
	require.NoError(t, err)

	sub := l.WithComponent("ircd")
	sub.Info("registered")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"component":"ircd"`))
}

func TestWithAttachesKeyValuePairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")

	l, err := New(Config{Output: path, Format: "json", Component: "bridge"})
	require.NoError(t, err)

	l.With("nick", "alice").Info("joined")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"nick":"alice"`))
}

func TestTextFormatProducesNonJSONOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")

	l, err := New(Config{Output: path, Format: "text", Component: "bridge"})
	require.NoError(t, err)

	l.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello"))
	var js map[string]interface{}
	assert.Error(t, json.Unmarshal(bytes.TrimSpace(data), &js))
}
