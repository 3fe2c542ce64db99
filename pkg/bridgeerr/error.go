// Package bridgeerr implements the error taxonomy of the bridge: a small
// closed set of kinds, not identities, so callers branch on Kind rather than
// on sentinel values or type assertions.
package bridgeerr

import "fmt"

// Kind classifies an error by how the bridge must react to it.
type Kind string

const (
	// KindConfig: missing token, unreadable files, bad port. Fatal at startup.
	KindConfig Kind = "config"
	// KindAuth: Slack rejected the token/cookie. Fatal; exit 1.
	KindAuth Kind = "auth"
	// KindTransportTransient: network drop, 5xx, rate-limit. Retried inside
	// the transport; invisible above it.
	KindTransportTransient Kind = "transport_transient"
	// KindTransportTerminal: repeated failures past the retry budget. Drops
	// the websocket and transitions the bridge to RECONNECTING.
	KindTransportTerminal Kind = "transport_terminal"
	// KindLookupMiss: unknown user/room/ts. Logged, triggers a background
	// refresh; the triggering event is still delivered with a substitution.
	KindLookupMiss Kind = "lookup_miss"
	// KindMalformedEvent: JSON parse failure or a required field missing.
	// Logged, event dropped, never fatal.
	KindMalformedEvent Kind = "malformed_event"
	// KindCommand: an IRC or extension command referenced a missing target,
	// unreadable file, or invalid argument. Reported to the client.
	KindCommand Kind = "command"
	// KindPersistence: the status file was unreadable or unwritable.
	// Logged; in-memory state continues unaffected.
	KindPersistence Kind = "persistence"
)

// Error is a kinded, wrapped error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, if any part of its chain is an *Error.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if be, ok := err.(*Error); ok {
			return be.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "", false
}

// IsFatal reports whether err should terminate the process, per the
// propagation policy: only Config and Auth errors are fatal.
func IsFatal(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	return kind == KindConfig || kind == KindAuth
}

// ExitCode maps a fatal error to the process exit code described by the
// external interfaces: 0 for nil, 1 for config/auth, 2 for an unrecoverable
// Slack API error surfaced after retries or for an error that carries no
// Kind, 0 for any other Kind.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	kind, ok := KindOf(err)
	if !ok {
		return 2
	}
	switch kind {
	case KindConfig, KindAuth:
		return 1
	case KindTransportTerminal:
		return 2
	default:
		return 0
	}
}
