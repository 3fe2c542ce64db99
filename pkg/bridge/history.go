package bridge

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/slackirc/bridge/pkg/metrics"
	"github.com/slackirc/bridge/pkg/session"
	"github.com/slackirc/bridge/pkg/slackapi"
)

// backfillConcurrency bounds how many rooms are backfilled at once, per
// spec.md §4.6 ("history for every auto-joined channel and every IM is
// fetched in parallel-but-sounded (≤ 4 in flight)").
const backfillConcurrency = 4

// backfillMaxAge is applied when a room has no persisted cursor: messages
// older than this are discarded rather than replayed in full, per spec.md
// §4.6 ("messages older than a configurable cap (default: the stored
// cursor, else 24 h) are discarded").
const backfillMaxAge = 24 * time.Hour

// backfillResult is one room's outcome, handed back to the caller for
// delivery once RUNNING is entered.
type backfillResult struct {
	RoomID   string
	Messages []slackapi.Message
	Partial  bool
}

// backfillAll fetches history for every room in rooms concurrently, bounded
// at backfillConcurrency in flight, and returns one result per room in the
// input order. lastSeen supplies each room's persisted cursor, if any; a
// room with no cursor is bounded by backfillMaxAge instead. The whole
// operation observes ctx cancellation: on a SYNCING→DORMANT or
// SYNCING→RECONNECTING transition mid-fetch, in-flight and not-yet-started
// fetches are abandoned and partial results are discarded by the caller.
func backfillAll(ctx context.Context, sess *session.Session, rooms []*session.Room, lastSeen map[string]string, m *metrics.Metrics) []backfillResult {
	results := make([]backfillResult, len(rooms))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)

	for i, room := range rooms {
		i, room := i, room
		g.Go(func() error {
			if m != nil {
				m.HistoryBackfillActive.Inc()
				defer m.HistoryBackfillActive.Dec()
			}

			since := lastSeen[room.ID]
			if since == "" {
				since = tsBefore(backfillMaxAge)
			}

			res, err := sess.History(gctx, room.ID, since, 200)
			if err != nil {
				// A failed fetch for one room must never abort the others:
				// the bridge's "malformed/transient is dropped, never
				// fatal" posture applies per-room here too.
				results[i] = backfillResult{RoomID: room.ID}
				return nil
			}
			results[i] = backfillResult{RoomID: room.ID, Messages: res.Messages, Partial: res.Partial}
			return nil
		})
	}

	// errgroup.Group.Wait only returns an error from a Go func that
	// returned one; every closure above swallows its own error, so Wait
	// here only ever reports ctx cancellation, which the caller already
	// observes by discarding all results on transition.
	_ = g.Wait()
	return results
}

// tsBefore renders "now minus d" as a Slack-style "sec.micro" timestamp
// string, suitable as the "oldest" bound passed to conversations.history.
func tsBefore(d time.Duration) string {
	t := time.Now().Add(-d)
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}
