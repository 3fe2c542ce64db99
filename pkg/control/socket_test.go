package control

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
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

func sendRequest(t *testing.T, path string, req Request) Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	_, err = conn.Write(append(lenBuf[:], body...))
	require.NoError(t, err)

	var respLenBuf [4]byte
	_, err = io.ReadFull(conn, respLenBuf[:])
	require.NoError(t, err)
	n := binary.BigEndian.Uint32(respLenBuf[:])
	respBody := make([]byte, n)
	_, err = io.ReadFull(conn, respBody)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(respBody, &resp))
	return resp
}

func TestSendMessageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")

	srv := New(path, func(req Request) Response {
		if req.Op != "send-message" {
			return Response{Error: "unknown op"}
		}
		return Response{OK: true, Result: req.Target + ":" + req.Text}
	}, testLogger(t))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	resp := sendRequest(t, path, Request{Op: "send-message", Target: "#general", Text: "hi"})
	assert.True(t, resp.OK)
	assert.Equal(t, "#general:hi", resp.Result)
}

func TestGetConfigOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "control.sock")

	srv := New(path, func(req Request) Response {
		return Response{OK: true, Result: map[string]interface{}{"port": 9007}}
	}, testLogger(t))
	require.NoError(t, srv.Start())
	defer srv.Stop()

	resp := sendRequest(t, path, Request{Op: "get-config"})
	assert.True(t, resp.OK)
}

func TestEmptyPathNeverListens(t *testing.T) {
	srv := New("", func(req Request) Response { return Response{OK: true} }, testLogger(t))
	require.NoError(t, srv.Start())
	srv.Stop()
}
