// Package archive persists finished capture sessions with their latency
// breakdown. Records expire after a TTL.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"go.aimuz.me/iris/internal/types"
)

// ErrNotFound is returned by Get for unknown or expired ids.
var ErrNotFound = errors.New("session not found")

const keyPrefix = "session/"

// Outcome values stored on a record.
const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeDismissed = "dismissed"
	OutcomeAborted   = "aborted"
)

// Latency holds the offsets of each pipeline milestone from the trigger.
// Zero means the milestone was not reached.
type Latency struct {
	Listening  time.Duration `json:"listening"`
	Finalized  time.Duration `json:"finalized"`
	FirstToken time.Duration `json:"firstToken"`
	Done       time.Duration `json:"done"`
}

// Record is one archived session.
type Record struct {
	ID         string      `json:"id"`
	StartedAt  time.Time   `json:"startedAt"`
	Focus      string      `json:"focus,omitempty"`
	Transcript string      `json:"transcript"`
	Reason     string      `json:"reason,omitempty"` // voice completion path
	Response   string      `json:"response,omitempty"`
	Outcome    string      `json:"outcome"`
	Error      string      `json:"error,omitempty"`
	Model      string      `json:"model,omitempty"`
	Usage      types.Usage `json:"usage"`
	Latency    Latency     `json:"latency"`
}

// Store is a badger-backed session archive.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// DefaultDir returns the archive directory under the user config dir.
func DefaultDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, "iris", "archive"), nil
}

// Open opens or creates the archive in dir. A ttl of zero keeps records
// forever.
func Open(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores or replaces a record.
func (s *Store) Put(rec Record) error {
	if rec.ID == "" {
		return errors.New("put session: empty id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+rec.ID), data)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) List(limit int) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					slog.Warn("skip corrupt session record", "key", string(it.Item().Key()), "error", err)
					return nil
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].StartedAt.After(recs[j].StartedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Delete removes a record. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
