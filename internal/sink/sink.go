// Package sink persists accepted records: one CSV row per unique id, flushed
// as soon as it is written.
package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/Adda-Baaj/tweet-harvester/internal/storage"
	"github.com/Adda-Baaj/tweet-harvester/pkg/publishers"
)

var fieldFlattener = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// OpenMode decides what happens to an existing output file.
type OpenMode int

const (
	// Create truncates the file and writes a fresh header.
	Create OpenMode = iota
	// Append keeps existing rows; the header is written only into an empty file.
	Append
)

// RecordPublisher forwards accepted records downstream.
type RecordPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Options wires the optional collaborators of a Sink.
type Options struct {
	Mode      domain.Mode
	OpenMode  OpenMode
	Store     storage.Store
	Publisher RecordPublisher
	Query     string
	Log       logger.Logger
}

// Sink is the only place records are accepted: an id is written at most once per run.
type Sink struct {
	mu        sync.Mutex
	path      string
	mode      domain.Mode
	file      *os.File
	w         *csv.Writer
	seen      *SeenSet
	store     storage.Store
	publisher RecordPublisher
	query     string
	window    domain.Window
	useStore  bool
	written   int
	log       logger.Logger
	closed    bool
}

// Open creates or reopens the CSV at path.
func Open(path string, opts Options) (*Sink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sink path is empty")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if opts.OpenMode == Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat output %s: %w", path, err)
	}

	store := opts.Store
	if store == nil {
		store, _ = storage.NewStore("none", "", storage.Options{})
	}

	s := &Sink{
		path:      path,
		mode:      opts.Mode,
		file:      f,
		w:         csv.NewWriter(f),
		seen:      NewSeenSet(),
		store:     store,
		useStore:  opts.OpenMode == Append,
		publisher: opts.Publisher,
		query:     opts.Query,
		log:       logger.Ensure(opts.Log),
	}

	if info.Size() == 0 {
		if err := s.writeRow(opts.Mode.Columns()); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return s, nil
}

// Path returns the output file path.
func (s *Sink) Path() string { return s.path }

// Seed marks ids as already persisted without writing them.
func (s *Sink) Seed(ids []int64) {
	for _, id := range ids {
		s.seen.Add(id)
	}
}

// SetWindow tags subsequently published events with w.
func (s *Sink) SetWindow(w domain.Window) {
	s.mu.Lock()
	s.window = w
	s.mu.Unlock()
}

// Seen exposes the run's id set.
func (s *Sink) Seen() *SeenSet { return s.seen }

// Written returns the number of rows written by this sink.
func (s *Sink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Offer persists rec unless its id was already accepted. The row is flushed
// before Offer returns.
func (s *Sink) Offer(ctx context.Context, rec domain.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errors.New("sink is closed")
	}
	if s.seen.Contains(rec.ID) {
		return false, nil
	}

	// A truncated output is rebuilt from scratch, so ids from earlier runs
	// only count as duplicates when the file is being extended.
	if s.useStore {
		dup, err := s.store.SeenRecord(rec.ID)
		if err != nil {
			s.log.WarnObj("seen store lookup failed", "sink_error", map[string]any{
				"record_id": rec.ID,
				"error":     err.Error(),
			})
		}
		if dup {
			s.seen.Add(rec.ID)
			return false, nil
		}
	}

	if err := s.writeRow(s.row(rec)); err != nil {
		return false, fmt.Errorf("write record %d: %w", rec.ID, err)
	}
	s.seen.Add(rec.ID)
	s.written++

	if err := s.store.MarkRecord(rec.ID); err != nil {
		s.log.WarnObj("seen store mark failed", "sink_error", map[string]any{
			"record_id": rec.ID,
			"error":     err.Error(),
		})
	}
	s.publish(ctx, rec)
	return true, nil
}

// Close flushes and syncs the file. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.w.Flush()
	var errs []error
	if err := s.w.Error(); err != nil {
		errs = append(errs, fmt.Errorf("flush output: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync output: %w", err))
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Sink) row(rec domain.Record) []string {
	id := strconv.FormatInt(rec.ID, 10)
	if s.mode == domain.ModeIDsOnly {
		return []string{id}
	}
	return []string{
		id,
		fieldFlattener.Replace(rec.AuthorID),
		fieldFlattener.Replace(rec.Timestamp),
		fieldFlattener.Replace(rec.Text),
	}
}

func (s *Sink) writeRow(fields []string) error {
	if err := s.w.Write(fields); err != nil {
		return err
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *Sink) publish(ctx context.Context, rec domain.Record) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, publishers.NewEvent(s.query, s.window, rec)); err != nil {
		s.log.WarnObj("record publish failed", "publish_error", map[string]any{
			"record_id": rec.ID,
			"error":     err.Error(),
		})
	}
}
