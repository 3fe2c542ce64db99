package bridgeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(New(KindConfig, "bad port")))
	assert.True(t, IsFatal(New(KindAuth, "token rejected")))
	assert.False(t, IsFatal(New(KindLookupMiss, "unknown user")))
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("plain error")))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(New(KindConfig, "x")))
	assert.Equal(t, 1, ExitCode(New(KindAuth, "x")))
	assert.Equal(t, 2, ExitCode(New(KindTransportTerminal, "x")))
	assert.Equal(t, 0, ExitCode(New(KindLookupMiss, "x")))
}

func TestWrapUnwrapAndKindOf(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	wrapped := Wrap(KindTransportTransient, "rtm connect", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "rtm connect")
	assert.Contains(t, wrapped.Error(), "timeout")

	// KindOf should see through an additional fmt.Errorf %w wrap.
	outer := fmt.Errorf("slack session: %w", wrapped)
	kind, ok := KindOf(outer)
	assert.True(t, ok)
	assert.Equal(t, KindTransportTransient, kind)
}
