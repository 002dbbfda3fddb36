package storage

import (
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func openTestStore(t *testing.T, path string, opts Options, clock *fakeClock) *boltStore {
	t.Helper()
	s, err := openBolt(path, opts, clock.now)
	if err != nil {
		t.Fatalf("openBolt: %v", err)
	}
	return s
}

func TestBoltStoreExpiresByTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := openTestStore(t, filepath.Join(t.TempDir(), "seen.db"), Options{RecordTTL: time.Hour, CleanupInterval: 24 * time.Hour}, clock)
	defer s.Close()

	if seen, err := s.SeenRecord(1234); err != nil || seen {
		t.Fatalf("expected unseen record, seen=%v err=%v", seen, err)
	}
	if err := s.MarkRecord(1234); err != nil {
		t.Fatalf("MarkRecord: %v", err)
	}

	clock.t = clock.t.Add(59 * time.Minute)
	if seen, err := s.SeenRecord(1234); err != nil || !seen {
		t.Fatalf("expected record within ttl, seen=%v err=%v", seen, err)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	if seen, err := s.SeenRecord(1234); err != nil || seen {
		t.Fatalf("expected record past ttl to be unseen, seen=%v err=%v", seen, err)
	}
}

func TestBoltStoreSweepsExpiredOnWrite(t *testing.T) {
	clock := &fakeClock{t: time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "seen.db")
	s := openTestStore(t, path, Options{RecordTTL: time.Hour, CleanupInterval: 2 * time.Hour}, clock)

	for id := int64(1); id <= 3; id++ {
		if err := s.MarkRecord(id); err != nil {
			t.Fatalf("MarkRecord(%d): %v", id, err)
		}
	}
	clock.t = clock.t.Add(3 * time.Hour)
	if err := s.MarkRecord(99); err != nil {
		t.Fatalf("MarkRecord: %v", err)
	}

	var keys int
	if err := s.db.View(func(tx *bolt.Tx) error {
		keys = tx.Bucket(recordsBucket).Stats().KeyN
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	if keys != 1 {
		t.Fatalf("expected only the fresh id to remain, got %d keys", keys)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openTestStore(t, path, Options{RecordTTL: time.Hour, CleanupInterval: 2 * time.Hour}, clock)
	defer reopened.Close()
	if !reopened.lastSweep.Equal(clock.t) {
		t.Fatalf("last sweep not persisted: %v", reopened.lastSweep)
	}
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "seen.db")

	first, err := NewStore(TypeBBolt, path, Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := first.MarkRecord(42); err != nil {
		t.Fatalf("MarkRecord: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewStore(TypeBBolt, path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	if seen, err := second.SeenRecord(42); err != nil || !seen {
		t.Fatalf("expected id to survive reopen, seen=%v err=%v", seen, err)
	}
	if seen, _ := second.SeenRecord(-42); seen {
		t.Fatalf("distinct ids must not collide")
	}
}

func TestDisabledStoreNeverRemembers(t *testing.T) {
	store, err := NewStore("", "", Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.MarkRecord(1); err != nil {
		t.Fatalf("MarkRecord: %v", err)
	}
	if seen, _ := store.SeenRecord(1); seen {
		t.Fatalf("disabled store should never report seen")
	}
}

func TestNewStoreRejectsBadConfig(t *testing.T) {
	if _, err := NewStore("redis", "x", Options{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
	if _, err := NewStore(TypeBBolt, " ", Options{}); err == nil {
		t.Fatalf("expected error for empty bbolt path")
	}
}
