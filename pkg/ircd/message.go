// Package ircd implements the line-oriented IRC front-end of spec.md §4.5:
// registration, wire encode/decode, and numeric reply formatting. Command
// semantics (what JOIN or PRIVMSG actually does against Slack state) live
// in the caller (pkg/bridge), since that translation needs the bridge's
// session state this package has no business holding.
package ircd

import "strings"

// Message is one decoded IRC line: an optional prefix, a command (numeric
// or word), and a parameter list where the last element may have been sent
// as a ":trailing" multi-word argument.
type Message struct {
	Prefix  string
	Command string
	Params  []string
}

// ParseLine decodes a single IRC line, already stripped of its trailing
// CRLF/LF. Malformed input (a completely empty line) yields a zero Message
// with an empty Command; callers should simply ignore it, matching the
// bridge-wide "malformed input is dropped, never fatal" posture.
func ParseLine(line string) Message {
	var msg Message

	if strings.HasPrefix(line, ":") {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			msg.Prefix = line[1:]
			return msg
		}
		msg.Prefix = line[1:sp]
		line = strings.TrimLeft(line[sp+1:], " ")
	}

	if line == "" {
		return msg
	}

	for {
		if strings.HasPrefix(line, ":") {
			msg.Params = append(msg.Params, line[1:])
			break
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			if line != "" {
				msg.Params = append(msg.Params, line)
			}
			break
		}
		word := line[:sp]
		if word != "" {
			if msg.Command == "" {
				msg.Command = strings.ToUpper(word)
			} else {
				msg.Params = append(msg.Params, word)
			}
		}
		line = strings.TrimLeft(line[sp+1:], " ")
		if msg.Command != "" && line == "" {
			break
		}
	}

	if msg.Command == "" && len(msg.Params) > 0 {
		msg.Command = strings.ToUpper(msg.Params[0])
		msg.Params = msg.Params[1:]
	}

	return msg
}

// Format encodes prefix/command/params back into a wire line (without the
// trailing CRLF). The last param is sent with a leading ':' whenever it is
// empty or contains a space, so it survives round-tripping as one token.
func Format(prefix, command string, params ...string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteByte(':')
		b.WriteString(prefix)
		b.WriteByte(' ')
	}
	b.WriteString(command)

	for i, p := range params {
		b.WriteByte(' ')
		last := i == len(params)-1
		if last && (p == "" || strings.ContainsRune(p, ' ') || strings.HasPrefix(p, ":")) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}
