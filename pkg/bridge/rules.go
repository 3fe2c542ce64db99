package bridge

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/slackirc/bridge/pkg/state"
)

// annoyDebounce is the minimum gap between two outgoing typing responses to
// the same user, per spec.md §4.6 ("a received typing event ... triggers an
// annoy response only if the last response to that user was > 3 s ago").
const annoyDebounce = 3 * time.Second

// sweepInterval is how often expired annoy/autoreact rules are dropped.
const sweepInterval = 30 * time.Second

// autoreactRule is the in-memory counterpart of state.AutoreactRule: same
// shape, kept here so the bridge package doesn't need to reach into
// pkg/state for anything but the persisted document.
type autoreactRule struct {
	RoomID      string // empty means every room
	Probability float64
	Reaction    string
	Expiry      time.Time
}

// ruleEngine owns the annoy/autoreact tables for the one attached session.
// It is not safe for concurrent mutation from outside the event loop, save
// for the rand source, which is private per instance.
type ruleEngine struct {
	mu sync.Mutex

	annoy          map[string]time.Time // target user -> expiry
	autoreact      map[string][]autoreactRule
	lastAnnoyFired map[string]time.Time

	rng *rand.Rand
}

func newRuleEngine() *ruleEngine {
	return &ruleEngine{
		annoy:          make(map[string]time.Time),
		autoreact:      make(map[string][]autoreactRule),
		lastAnnoyFired: make(map[string]time.Time),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// loadFrom seeds the tables from a persisted document, e.g. right after
// restart. Already-expired entries are silently skipped.
func (e *ruleEngine) loadFrom(doc *state.Document, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range doc.AnnoyRules {
		if r.Expiry.After(now) {
			e.annoy[r.TargetUser] = r.Expiry
		}
	}
	for _, r := range doc.AutoreactRules {
		if r.Expiry.After(now) {
			e.autoreact[r.TargetUser] = append(e.autoreact[r.TargetUser], autoreactRule{
				RoomID: r.RoomID, Probability: r.Probability, Reaction: r.Reaction, Expiry: r.Expiry,
			})
		}
	}
}

// snapshot exports the tables back into the persisted shape for state.Save.
func (e *ruleEngine) snapshot() ([]state.AnnoyRule, []state.AutoreactRule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	annoy := make([]state.AnnoyRule, 0, len(e.annoy))
	for user, expiry := range e.annoy {
		annoy = append(annoy, state.AnnoyRule{TargetUser: user, Expiry: expiry})
	}
	sort.Slice(annoy, func(i, j int) bool { return annoy[i].TargetUser < annoy[j].TargetUser })

	var autoreact []state.AutoreactRule
	for user, rules := range e.autoreact {
		for _, r := range rules {
			autoreact = append(autoreact, state.AutoreactRule{
				TargetUser: user, RoomID: r.RoomID, Probability: r.Probability,
				Reaction: r.Reaction, Expiry: r.Expiry,
			})
		}
	}
	sort.Slice(autoreact, func(i, j int) bool { return autoreact[i].TargetUser < autoreact[j].TargetUser })

	return annoy, autoreact
}

// addAnnoy installs or refreshes an annoy rule for user, active for the
// given duration.
func (e *ruleEngine) addAnnoy(user string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.annoy[user] = time.Now().Add(d)
}

func (e *ruleEngine) dropAnnoy(user string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.annoy[user]
	delete(e.annoy, user)
	return ok
}

func (e *ruleEngine) listAnnoy() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.annoy))
	for user, expiry := range e.annoy {
		out = append(out, fmt.Sprintf("%s (expires %s)", user, expiry.Format(time.RFC3339)))
	}
	sort.Strings(out)
	return out
}

// addAutoreact installs an autoreact rule for user, optionally scoped to
// roomID (empty means every room).
func (e *ruleEngine) addAutoreact(user, roomID string, prob float64, reaction string, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoreact[user] = append(e.autoreact[user], autoreactRule{
		RoomID: roomID, Probability: prob, Reaction: reaction, Expiry: time.Now().Add(d),
	})
}

func (e *ruleEngine) dropAutoreact(user string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.autoreact[user]
	delete(e.autoreact, user)
	return ok
}

func (e *ruleEngine) listAutoreact() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for user, rules := range e.autoreact {
		for _, r := range rules {
			scope := r.RoomID
			if scope == "" {
				scope = "*"
			}
			out = append(out, fmt.Sprintf("%s %s p=%.2f :%s: (expires %s)", user, scope, r.Probability, r.Reaction, r.Expiry.Format(time.RFC3339)))
		}
	}
	sort.Strings(out)
	return out
}

// sweep drops every rule whose expiry has passed, per spec.md §4.6 ("Annoy/
// autoreact expiry sweep every 30 s; expired entries removed."). Returns
// whether anything changed, so the caller knows whether to persist.
func (e *ruleEngine) sweep(now time.Time) (changed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for user, expiry := range e.annoy {
		if !expiry.After(now) {
			delete(e.annoy, user)
			delete(e.lastAnnoyFired, user)
			changed = true
		}
	}
	for user, rules := range e.autoreact {
		kept := rules[:0]
		for _, r := range rules {
			if r.Expiry.After(now) {
				kept = append(kept, r)
			} else {
				changed = true
			}
		}
		if len(kept) == 0 {
			delete(e.autoreact, user)
		} else {
			e.autoreact[user] = kept
		}
	}
	return changed
}

// shouldAnnoy reports whether a typing event from user should trigger an
// outgoing typing response, applying both the active-window check and the
// debounce window. On a positive result, the debounce clock is reset.
func (e *ruleEngine) shouldAnnoy(user string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	expiry, ok := e.annoy[user]
	if !ok || !expiry.After(now) {
		return false
	}
	if last, ok := e.lastAnnoyFired[user]; ok && now.Sub(last) < annoyDebounce {
		return false
	}
	e.lastAnnoyFired[user] = now
	return true
}

// rollAutoreacts evaluates every rule for user against a message in roomID,
// returning the reactions that win their probability roll.
func (e *ruleEngine) rollAutoreacts(user, roomID string, now time.Time) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []string
	for _, r := range e.autoreact[user] {
		if !r.Expiry.After(now) {
			continue
		}
		if r.RoomID != "" && r.RoomID != roomID {
			continue
		}
		if e.rng.Float64() < r.Probability {
			fired = append(fired, r.Reaction)
		}
	}
	return fired
}
