// Package journal is the append-only audit trail of compliance violations.
//
// Entries hold only redacted text, never the raw message. The journal is
// write-behind: sessions are never rebuilt from it, and a failed append
// is logged and counted by the caller without affecting the scan result.
//
// Two implementations are provided:
//   - memoryJournal: bounded ring in memory, used in tests and when no
//     path is configured.
//   - boltJournal: embedded bbolt database, used in production. Entries
//     survive restarts.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"pii-compliance-agent/internal/compliance"
	"pii-compliance-agent/internal/logger"
	"pii-compliance-agent/internal/pii"
	"pii-compliance-agent/internal/session"
)

// Entry is one journaled violation.
type Entry struct {
	Seq          uint64                `json:"seq"`
	ViolationID  string                `json:"violation_id"`
	SessionID    string                `json:"session_id"`
	UserID       string                `json:"user_id"`
	MessageID    string                `json:"message_id"`
	Kind         session.ViolationKind `json:"kind"`
	Severity     compliance.Severity   `json:"severity"`
	Categories   []pii.Category        `json:"categories"`
	Detections   int                   `json:"detections"`
	RedactedText string                `json:"redacted_text"`
	RiskLevel    session.RiskLevel     `json:"risk_level"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Journal stores violation entries. Implementations are safe for
// concurrent use.
type Journal interface {
	// Append stores e and assigns its sequence number.
	Append(e Entry) error

	// Recent returns up to n entries, newest first.
	Recent(n int) ([]Entry, error)

	// Close releases the underlying file, if any.
	Close() error
}

// Open returns a bbolt journal at path. An empty path, or a path that
// cannot be opened, yields an in-memory journal; the failure is logged.
func Open(path string, log *logger.Logger) Journal {
	if path == "" {
		log.Info("open", "no journal path configured, keeping violations in memory")
		return NewMemory(DefaultMemoryCapacity)
	}
	j, err := openBolt(path)
	if err != nil {
		log.Warnf("open", "%v, falling back to in-memory journal", err)
		return NewMemory(DefaultMemoryCapacity)
	}
	log.Infof("open", "violation journal at %s", path)
	return j
}

// --- memoryJournal -------------------------------------------------------

// DefaultMemoryCapacity bounds the in-memory journal.
const DefaultMemoryCapacity = 10000

type memoryJournal struct {
	mu      sync.RWMutex
	entries []Entry
	limit   int
	seq     uint64
}

// NewMemory returns an in-memory journal keeping the newest capacity entries.
func NewMemory(capacity int) Journal {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &memoryJournal{limit: capacity}
}

func (j *memoryJournal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	e.Seq = j.seq
	e.Categories = append([]pii.Category(nil), e.Categories...)
	j.entries = append(j.entries, e)
	if len(j.entries) > j.limit {
		j.entries = append(j.entries[:0:0], j.entries[len(j.entries)-j.limit:]...)
	}
	return nil
}

func (j *memoryJournal) Recent(n int) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(j.entries) - 1; i >= 0 && len(out) < n; i-- {
		e := j.entries[i]
		e.Categories = append([]pii.Category(nil), e.Categories...)
		out = append(out, e)
	}
	return out, nil
}

func (j *memoryJournal) Close() error { return nil }

// --- boltJournal ---------------------------------------------------------

const violationsBucket = "violations"

type boltJournal struct {
	db *bolt.DB
}

func openBolt(path string) (*boltJournal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(violationsBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create journal bucket: %w", err)
	}
	return &boltJournal{db: db}, nil
}

// Keys are big-endian sequence numbers so cursor order is append order.
func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func (j *boltJournal) Append(e Entry) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(violationsBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", violationsBucket)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		e.Seq = seq
		v, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		return b.Put(seqKey(seq), v)
	})
}

func (j *boltJournal) Recent(n int) ([]Entry, error) {
	var out []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(violationsBucket))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if n > 0 && len(out) >= n {
				break
			}
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}

func (j *boltJournal) Close() error {
	return j.db.Close()
}
