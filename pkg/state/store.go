// Package state persists the small slice of bridge state that must survive
// a restart: per-room last-seen cursors and the annoy/autoreact rule
// tables, per spec.md §4.7. Message bodies are never persisted.
package state

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/slackirc/bridge/pkg/logger"
)

// CurrentSchemaVersion is bumped whenever the on-disk Document shape
// changes incompatibly.
const CurrentSchemaVersion = 1

// AnnoyRule mirrors spec.md §3's annoy table entry: a target user and an
// absolute expiry.
type AnnoyRule struct {
	TargetUser string    `json:"target_user"`
	Expiry     time.Time `json:"expiry"`
}

// AutoreactRule mirrors spec.md §3's autoreact table entry. RoomID is empty
// when the rule applies to every room ("room-scope-or-nil").
type AutoreactRule struct {
	TargetUser  string    `json:"target_user"`
	RoomID      string    `json:"room_id,omitempty"`
	Probability float64   `json:"probability"`
	Reaction    string    `json:"reaction"`
	Expiry      time.Time `json:"expiry"`
}

// Document is the full on-disk shape written on clean shutdown and on
// every rule-table mutation.
type Document struct {
	SchemaVersion   int                      `json:"schema_version"`
	LastSeen        map[string]string        `json:"last_seen"` // room id -> ts
	AnnoyRules      []AnnoyRule              `json:"annoy_rules"`
	AutoreactRules  []AutoreactRule          `json:"autoreact_rules"`
	SilencedYellers []string                 `json:"silenced_yellers"`
}

// saveTimeout bounds how long Save may block shutdown, per spec.md §4.7:
// "The file must never block shutdown for more than 1 s; on timeout it is
// abandoned."
const saveTimeout = 1 * time.Second

// Store wraps a path to the status file.
type Store struct {
	path string
	log  *logger.Logger
}

// New builds a Store bound to path.
func New(path string, log *logger.Logger) *Store {
	return &Store{path: path, log: log}
}

// Load reads and decodes the status file. Any failure — missing file,
// truncated length prefix, corrupt JSON — is logged as a warning and
// returns a fresh, empty Document rather than an error: "corruption of the
// file is non-fatal and drops the persisted state with a warning"
// (spec.md §3, invariant 5).
func (s *Store) Load() *Document {
	fresh := &Document{
		SchemaVersion: CurrentSchemaVersion,
		LastSeen:      make(map[string]string),
	}

	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("status file unreadable, starting fresh", "path", s.path, "error", err)
		}
		return fresh
	}
	defer f.Close()

	doc, err := decode(f)
	if err != nil {
		s.log.Warn("status file corrupt, starting fresh", "path", s.path, "error", err)
		return fresh
	}
	if doc.LastSeen == nil {
		doc.LastSeen = make(map[string]string)
	}
	return doc
}

func decode(r io.Reader) (*Document, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save writes doc as a length-prefixed JSON document, abandoning the write
// if it does not complete within saveTimeout.
func (s *Store) Save(doc *Document) {
	done := make(chan error, 1)
	go func() {
		done <- s.writeNow(doc)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn("failed to persist status file", "path", s.path, "error", err)
		}
	case <-time.After(saveTimeout):
		s.log.Warn("status file save timed out, abandoning", "path", s.path)
	}
}

func (s *Store) writeNow(doc *Document) error {
	doc.SchemaVersion = CurrentSchemaVersion

	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, s.path)
}
