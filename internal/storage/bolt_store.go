package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("records")
	metaBucket    = []byte("meta")
	lastSweepKey  = []byte("last_sweep")

	errBucketMissing = errors.New("bbolt bucket missing")
)

// boltStore keys records by their big-endian id; the value is the time the id
// was marked. Expiry is computed on read, so a shorter TTL applies at once to
// entries written under a longer one.
type boltStore struct {
	db    *bolt.DB
	ttl   time.Duration
	sweep time.Duration
	now   func() time.Time

	mu        sync.Mutex
	lastSweep time.Time
}

func openBolt(path string, opts Options, now func() time.Time) (*boltStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db %s: %w", path, err)
	}

	s := &boltStore{db: db, ttl: opts.RecordTTL, sweep: opts.CleanupInterval, now: now}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		if ts, ok := decodeTime(meta.Get(lastSweepKey)); ok {
			s.lastSweep = ts
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return s, nil
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SeenRecord reports whether id was marked within the retention period.
func (s *boltStore) SeenRecord(id int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	cutoff := s.now().Add(-s.ttl)

	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return errBucketMissing
		}
		markedAt, ok := decodeTime(b.Get(idKey(id)))
		seen = ok && markedAt.After(cutoff)
		return nil
	})
	return seen, err
}

// MarkRecord stamps id with the current time. Expired ids are swept at most
// once per cleanup interval, piggybacking on writes.
func (s *boltStore) MarkRecord(id int64) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := s.now()

	s.mu.Lock()
	sweep := now.Sub(s.lastSweep) >= s.sweep
	s.mu.Unlock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(recordsBucket)
		if b == nil {
			return errBucketMissing
		}
		if err := b.Put(idKey(id), encodeTime(now)); err != nil {
			return err
		}
		if !sweep {
			return nil
		}
		return s.sweepExpired(tx, now)
	})
	if err == nil && sweep {
		s.mu.Lock()
		s.lastSweep = now
		s.mu.Unlock()
	}
	return err
}

func (s *boltStore) sweepExpired(tx *bolt.Tx, now time.Time) error {
	cutoff := now.Add(-s.ttl)
	c := tx.Bucket(recordsBucket).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if markedAt, ok := decodeTime(v); !ok || !markedAt.After(cutoff) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
	}
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return errBucketMissing
	}
	return meta.Put(lastSweepKey, encodeTime(now))
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func encodeTime(t time.Time) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(t.UnixNano()))
	return v
}

func decodeTime(v []byte) (time.Time, bool) {
	if len(v) != 8 {
		return time.Time{}, false
	}
	ns := int64(binary.BigEndian.Uint64(v))
	if ns <= 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
