package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/internal/storage"
	"github.com/Adda-Baaj/tweet-harvester/pkg/publishers"
	"github.com/google/go-cmp/cmp"
)

type fakePublisher struct {
	events []publishers.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.events = append(f.events, evt)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestOfferWritesEachIDOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "covid_2020-03-01_2020-03-05.csv")
	s, err := Open(path, Options{Mode: domain.ModeFull})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	offers := []domain.Record{
		{ID: 1, AuthorID: "10", Timestamp: "2020-03-01T10:00:00.000Z", Text: "first"},
		{ID: 2, AuthorID: "11", Timestamp: "2020-03-01T11:00:00.000Z", Text: "second"},
		{ID: 1, AuthorID: "10", Timestamp: "2020-03-01T10:00:00.000Z", Text: "first"},
	}
	var accepted int
	for _, rec := range offers {
		ok, err := s.Offer(context.Background(), rec)
		if err != nil {
			t.Fatalf("Offer: %v", err)
		}
		if ok {
			accepted++
		}
	}
	if accepted != 2 || s.Written() != 2 {
		t.Fatalf("accepted=%d written=%d", accepted, s.Written())
	}

	// rows are durable before Close
	rows := readRows(t, path)
	want := [][]string{
		{"tweet_id", "user_id", "timestamp", "text"},
		{"1", "10", "2020-03-01T10:00:00.000Z", "first"},
		{"2", "11", "2020-03-01T11:00:00.000Z", "second"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOfferFlattensEmbeddedNewlines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Offer(context.Background(), domain.Record{ID: 3, Text: "line one\nline two\r\nline three, quoted \"x\""}); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), raw)
	}
	rows := readRows(t, path)
	if rows[1][3] != `line one line two line three, quoted "x"` {
		t.Fatalf("text = %q", rows[1][3])
	}
}

func TestIDsOnlyHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.csv")
	s, err := Open(path, Options{Mode: domain.ModeIDsOnly})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Offer(context.Background(), domain.Record{ID: 99, Text: "ignored"}); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	s.Close()

	want := [][]string{{"tweet_id"}, {"99"}}
	if diff := cmp.Diff(want, readRows(t, path)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendKeepsRowsAndSkipsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.csv")
	first, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first.Offer(context.Background(), domain.Record{ID: 1, Text: "a"})
	first.Close()

	second, err := Open(path, Options{OpenMode: Append})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second.Seed([]int64{1})
	if ok, _ := second.Offer(context.Background(), domain.Record{ID: 1, Text: "a"}); ok {
		t.Fatalf("seeded id must be rejected")
	}
	if ok, _ := second.Offer(context.Background(), domain.Record{ID: 2, Text: "b"}); !ok {
		t.Fatalf("new id must be accepted")
	}
	second.Close()

	rows := readRows(t, path)
	if len(rows) != 3 || rows[0][0] != "tweet_id" || rows[1][0] != "1" || rows[2][0] != "2" {
		t.Fatalf("unexpected rows %q", rows)
	}
}

func TestCreateTruncatesExistingOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overwrite.csv")
	if err := os.WriteFile(path, []byte("tweet_id\n1\n2\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	s, err := Open(path, Options{Mode: domain.ModeIDsOnly, OpenMode: Create})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	if rows := readRows(t, path); len(rows) != 1 {
		t.Fatalf("expected only header after truncate, got %q", rows)
	}
}

func TestDurableStoreRejectsIDsFromEarlierRuns(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewStore("bbolt", filepath.Join(dir, "seen.db"), storage.Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	if err := store.MarkRecord(7); err != nil {
		t.Fatalf("MarkRecord: %v", err)
	}

	s, err := Open(filepath.Join(dir, "out.csv"), Options{Store: store, OpenMode: Append})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if ok, _ := s.Offer(context.Background(), domain.Record{ID: 7}); ok {
		t.Fatalf("id from an earlier run must be rejected when appending")
	}
	if ok, _ := s.Offer(context.Background(), domain.Record{ID: 8}); !ok {
		t.Fatalf("fresh id must be accepted")
	}
	if seen, _ := store.SeenRecord(8); !seen {
		t.Fatalf("accepted id must be marked in the store")
	}
}

func TestCreateRewritesIDsKnownToDurableStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	store, err := storage.NewStore("bbolt", filepath.Join(dir, "seen.db"), storage.Options{})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	for run := 1; run <= 2; run++ {
		s, err := Open(path, Options{Mode: domain.ModeIDsOnly, Store: store, OpenMode: Create})
		if err != nil {
			t.Fatalf("run %d: Open: %v", run, err)
		}
		ok, err := s.Offer(context.Background(), domain.Record{ID: 7})
		if err != nil || !ok {
			t.Fatalf("run %d: Offer ok=%v err=%v", run, ok, err)
		}
		if ok, _ := s.Offer(context.Background(), domain.Record{ID: 7}); ok {
			t.Fatalf("run %d: id accepted twice", run)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("run %d: Close: %v", run, err)
		}
	}

	if diff := cmp.Diff([][]string{{"tweet_id"}, {"7"}}, readRows(t, path)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	if seen, _ := store.SeenRecord(7); !seen {
		t.Fatalf("id written in create mode must still be marked")
	}
}

func TestPublishFailureDoesNotRejectRecord(t *testing.T) {
	pub := &fakePublisher{err: errors.New("queue down")}
	s, err := Open(filepath.Join(t.TempDir(), "out.csv"), Options{Publisher: pub, Query: "nasa"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	w := domain.Window{Since: mustDate(t, "2020-03-01"), Until: mustDate(t, "2020-03-02")}
	s.SetWindow(w)
	ok, err := s.Offer(context.Background(), domain.Record{ID: 5})
	if err != nil || !ok {
		t.Fatalf("Offer: ok=%v err=%v", ok, err)
	}
	if len(pub.events) != 1 || pub.events[0].Query != "nasa" || pub.events[0].Window != w {
		t.Fatalf("unexpected events %#v", pub.events)
	}
}

func TestOfferAfterCloseFails(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "out.csv"), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()
	if _, err := s.Offer(context.Background(), domain.Record{ID: 1}); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}
