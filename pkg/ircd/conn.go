package ircd

import (
	"bufio"
	"net"
	"strings"
	"sync"
)

// Conn is a single line-oriented IRC connection. Reads tolerate a bare
// "\n" line ending as well as the proper "\r\n", per spec.md §6.
type Conn struct {
	net.Conn
	reader *bufio.Reader

	mu sync.Mutex

	Nick     string
	User     string
	RealName string
	Registered bool
}

// NewConn wraps an accepted net.Conn.
func NewConn(c net.Conn) *Conn {
	return &Conn{Conn: c, reader: bufio.NewReader(c)}
}

// ReadMessage reads and parses the next line. It returns io.EOF (or a wrapped
// network error) when the connection is closed.
func (c *Conn) ReadMessage() (Message, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil && line == "" {
		return Message{}, err
	}
	line = strings.TrimRight(line, "\r\n")
	return ParseLine(line), nil
}

// WriteMessage sends a fully-formed line, appending the wire CRLF.
func (c *Conn) WriteMessage(prefix, command string, params ...string) error {
	return c.WriteLine(Format(prefix, command, params...))
}

// WriteLine sends a raw pre-formatted line (without CRLF), appending it.
// Writes are serialized: the bridge's event loop and any detached tasks
// (e.g. /sendfile) may both write to the same attached client.
func (c *Conn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.Conn.Write([]byte(line + "\r\n"))
	return err
}

// WriteNumeric sends a numeric reply addressed to the connection's own
// nick.
func (c *Conn) WriteNumeric(code int, text string) error {
	return c.WriteLine(Numeric(code, c.Nick, text))
}

// Mask returns the nick!user@host origin string used as the prefix on
// messages this connection is told originate from a given Slack user.
func Mask(nick string) string {
	return nick + "!" + nick + "@slack"
}

// ForceRename sends a server-driven NICK change to the client and updates
// the connection's own Nick to match, for invariant 3: the attached
// client's IRC nick equals the Slack self-user's name for the duration of
// the session. A no-op if newNick is already current.
func (c *Conn) ForceRename(newNick string) error {
	if newNick == "" || newNick == c.Nick {
		return nil
	}
	prefix := Mask(c.Nick)
	c.Nick = newNick
	return c.WriteMessage(prefix, "NICK", newNick)
}
