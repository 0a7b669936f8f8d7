// Package journal provides local persistence for realtime events using
// BoltDB. Decision and notification frames are appended as they arrive so
// the audit surfaces can replay what the client saw, including across
// restarts and reconnects.
package journal

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	decisionsBucket     = "decisions"
	notificationsBucket = "notifications"
)

// Entry is one journaled event: the raw payload plus the local receive time.
type Entry struct {
	Ts      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Journal is an append-mostly event log backed by BoltDB. Keys are
// zero-padded receive timestamps, so cursor order is time order.
type Journal struct {
	db *bbolt.DB
}

// New opens (or creates) the journal database under dataPath.
func New(dataPath string) (*Journal, error) {
	dbPath := filepath.Join(dataPath, "tradedesk-events.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(decisionsBucket)); err != nil {
			return fmt.Errorf("create decisions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(notificationsBucket)); err != nil {
			return fmt.Errorf("create notifications bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// StoreDecision appends a decision event.
func (j *Journal) StoreDecision(e Entry) error {
	return j.store(decisionsBucket, e)
}

// StoreNotification appends a notification event.
func (j *Journal) StoreNotification(e Entry) error {
	return j.store(notificationsBucket, e)
}

func (j *Journal) store(bucket string, e Entry) error {
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}

	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}

		return b.Put(timeKey(e.Ts), data)
	})
}

// GetDecisions returns decision entries within [start, end], oldest first.
func (j *Journal) GetDecisions(start, end time.Time) ([]Entry, error) {
	return j.entriesInRange(decisionsBucket, start, end)
}

// GetNotifications returns notification entries within [start, end], oldest first.
func (j *Journal) GetNotifications(start, end time.Time) ([]Entry, error) {
	return j.entriesInRange(notificationsBucket, start, end)
}

func (j *Journal) entriesInRange(bucket string, start, end time.Time) ([]Entry, error) {
	var entries []Entry

	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()

		startKey := timeKey(start)
		endKey := timeKey(end)

		for k, v := c.Seek(startKey); k != nil && string(k) <= string(endKey); k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue // Skip malformed records
			}
			entries = append(entries, e)
		}

		return nil
	})

	return entries, err
}

// timeKey encodes a timestamp so lexicographic order equals time order.
// Same-nanosecond writes overwrite; acceptable for a local audit trail.
func timeKey(t time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}
