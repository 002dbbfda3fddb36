// Package storage remembers which record ids were already written so a later
// run, or a run into a different output file, does not emit them again.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Store is the durable seen-id set. Entries expire after a retention period.
type Store interface {
	SeenRecord(id int64) (bool, error)
	MarkRecord(id int64) error
	Close() error
}

// Options controls retention. Zero values fall back to defaults.
type Options struct {
	RecordTTL       time.Duration
	CleanupInterval time.Duration
}

const (
	TypeNone  = "none"
	TypeBBolt = "bbolt"

	defaultRecordTTL       = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore opens the backend named by typ. "none" (or empty) keeps nothing.
func NewStore(typ, path string, opts Options) (Store, error) {
	if opts.RecordTTL <= 0 {
		opts.RecordTTL = defaultRecordTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}

	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", TypeNone, "disabled":
		return Disabled(), nil
	case TypeBBolt:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		s, err := openBolt(path, opts, time.Now)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// Disabled returns a Store that never reports an id as seen.
func Disabled() Store { return noopStore{} }

type noopStore struct{}

func (noopStore) SeenRecord(int64) (bool, error) { return false, nil }
func (noopStore) MarkRecord(int64) error         { return nil }
func (noopStore) Close() error                   { return nil }
