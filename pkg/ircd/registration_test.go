package ircd

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConn(server)
	done := make(chan struct{})
	var password string
	var regErr error

	go func() {
		password, regErr = Register(conn)
		close(done)
	}()

	clientW := bufio.NewWriter(client)
	clientR := bufio.NewReader(client)

	clientW.WriteString("PASS xoxb-secret\r\n")
	clientW.WriteString("NICK alice\r\n")
	clientW.WriteString("USER alice 0 * :Alice A\r\n")
	require.NoError(t, clientW.Flush())

	var lines []string
	for i := 0; i < 6; i++ {
		line, err := clientR.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, line)
	}

	<-done
	require.NoError(t, regErr)
	assert.Equal(t, "xoxb-secret", password)
	assert.Equal(t, "alice", conn.Nick)
	assert.Equal(t, "alice", conn.User)
	assert.Equal(t, "Alice A", conn.RealName)
	assert.True(t, conn.Registered)
	assert.Contains(t, lines[0], "001")
	assert.Contains(t, lines[0], "Welcome")
}

func TestRegisterRejectsInvalidNick(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConn(server)
	done := make(chan struct{})

	go func() {
		Register(conn)
		close(done)
	}()

	clientW := bufio.NewWriter(client)
	clientR := bufio.NewReader(client)

	clientW.WriteString("NICK 1bad\r\n")
	require.NoError(t, clientW.Flush())

	line, err := clientR.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "432")
	assert.Equal(t, "", conn.Nick)

	clientW.WriteString("NICK alice\r\n")
	clientW.WriteString("USER alice 0 * :Alice A\r\n")
	require.NoError(t, clientW.Flush())

	for i := 0; i < 6; i++ {
		_, err := clientR.ReadString('\n')
		require.NoError(t, err)
	}
	<-done
}

func TestConnReadMessageTrimsLineEndings(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConn(server)
	msgCh := make(chan Message, 1)
	go func() {
		msg, err := conn.ReadMessage()
		require.NoError(t, err)
		msgCh <- msg
	}()

	_, err := client.Write([]byte("PING :abc\n"))
	require.NoError(t, err)

	msg := <-msgCh
	assert.Equal(t, "PING", msg.Command)
	assert.Equal(t, []string{"abc"}, msg.Params)
}

func TestMaskFormat(t *testing.T) {
	assert.Equal(t, "alice!alice@slack", Mask("alice"))
}

func TestForceRenameSendsNickAndUpdatesConn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConn(server)
	conn.Nick = "alice"

	done := make(chan error, 1)
	go func() {
		done <- conn.ForceRename("realslackname")
	}()

	clientR := bufio.NewReader(client)
	line, err := clientR.ReadString('\n')
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, "realslackname", conn.Nick)
	assert.Contains(t, line, "alice!alice@slack")
	assert.Contains(t, line, "NICK")
	assert.Contains(t, line, "realslackname")
}

func TestForceRenameNoopWhenNickAlreadyCurrent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConn(server)
	conn.Nick = "alice"

	err := conn.ForceRename("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", conn.Nick)
}
