package ircd

import "fmt"

// Register performs the registration handshake of spec.md §4.5 and §8
// scenario 1: it reads NICK/USER (optionally preceded by PASS and/or CAP
// negotiation) until both are present, then sends the 001-005 block and a
// 422 ("no MOTD file") since this bridge never carries a real MOTD.
// password is the value of a PASS command, if sent, for callers that want
// to treat it as e.g. a pre-extracted Slack token a client could supply
// in-band instead of via the out-of-scope config file.
func Register(c *Conn) (password string, err error) {
	for !(c.Nick != "" && c.User != "") {
		msg, rerr := c.ReadMessage()
		if rerr != nil {
			return "", rerr
		}

		switch msg.Command {
		case "PASS":
			if len(msg.Params) > 0 {
				password = msg.Params[0]
			}
		case "CAP":
			handleCap(c, msg)
		case "NICK":
			if len(msg.Params) == 0 {
				c.WriteNumeric(ErrNeedMoreParam, "NICK :Not enough parameters")
				continue
			}
			if !validNick(msg.Params[0]) {
				c.WriteLine(Numeric(ErrErroneusNick, "*", msg.Params[0]+" :Erroneous nickname"))
				continue
			}
			c.Nick = msg.Params[0]
		case "USER":
			if len(msg.Params) < 4 {
				c.WriteNumeric(ErrNeedMoreParam, "USER :Not enough parameters")
				continue
			}
			c.User = msg.Params[0]
			c.RealName = msg.Params[3]
		case "":
			// blank line, ignore
		default:
			// Anything else arriving pre-registration is simply queued out:
			// the bridge isn't connected to Slack yet, so there is nothing
			// useful to do with it besides 451-style rejection, which most
			// clients don't send this early anyway. We stay permissive.
		}
	}

	c.Registered = true
	sendWelcome(c)
	return password, nil
}

func handleCap(c *Conn, msg Message) {
	if len(msg.Params) == 0 {
		return
	}
	switch msg.Params[0] {
	case "LS":
		c.WriteLine(Format(ServerName, "CAP", "*", "LS", ":"))
	case "END":
		// no-op: registration proceeds once NICK/USER are both seen
	}
}

func sendWelcome(c *Conn) {
	nick := c.Nick
	c.WriteLine(Numeric(RplWelcome, nick, fmt.Sprintf("Welcome to the Slack bridge, %s", nick)))
	c.WriteLine(Numeric(RplYourHost, nick, fmt.Sprintf("Your host is %s, running slackirc", ServerName)))
	c.WriteLine(Numeric(RplCreated, nick, "This server was created just for you"))
	c.WriteLine(Numeric(RplMyInfo, nick, fmt.Sprintf("%s slackirc-bridge o o", ServerName)))
	c.WriteLine(NumericArgs(RplISupport, nick, []string{"CHANTYPES=#&", "PREFIX=(o)@"}, "are supported by this server"))
	c.WriteLine(Numeric(422, nick, "MOTD File is missing"))
}

func validNick(nick string) bool {
	if nick == "" || len(nick) > 32 {
		return false
	}
	for i, r := range nick {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '_' || r == '-' || r == '[' || r == ']' || r == '\\' || r == '^' || r == '{' || r == '}':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
