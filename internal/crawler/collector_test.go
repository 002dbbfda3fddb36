package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/pkg/browser"
	"github.com/google/go-cmp/cmp"
)

func TestCollectStopsAfterTwoUnmovedScrolls(t *testing.T) {
	session := &fakeSession{offsets: []int{100, 100}}
	c := newTestCollector(nil)

	state, outcome, err := c.Collect(context.Background(), session, newMemorySink(), domain.ScrollState{ScrollOffset: 100}, 0, domain.ModeFull)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if outcome != OutcomeDone {
		t.Fatalf("outcome = %v, want done", outcome)
	}
	if state.StuckCount != 2 || session.scrolls != 2 {
		t.Fatalf("stuck=%d scrolls=%d, want 2 and 2", state.StuckCount, session.scrolls)
	}
	if session.cardCalls != 1 {
		t.Fatalf("expected a single scan, got %d", session.cardCalls)
	}
}

func TestCollectResetsStuckCountWhenPageMoves(t *testing.T) {
	session := &fakeSession{
		offsets: []int{100, 200, 200, 200},
		cards:   [][]browser.Card{idCards("1", "2"), idCards("2", "3")},
	}
	sink := newMemorySink()
	c := newTestCollector(nil)

	state, outcome, err := c.Collect(context.Background(), session, sink, domain.ScrollState{ScrollOffset: 100}, 0, domain.ModeFull)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if outcome != OutcomeDone || state.ScrollOffset != 200 || state.StuckCount != 2 {
		t.Fatalf("unexpected end state %+v outcome=%v", state, outcome)
	}
	if session.cardCalls != 2 {
		t.Fatalf("expected two scans, got %d", session.cardCalls)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, sink.order); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if state.Collected != 3 {
		t.Fatalf("collected = %d", state.Collected)
	}
}

func TestCollectStopsMidScanAtLimit(t *testing.T) {
	session := &fakeSession{
		cards: [][]browser.Card{idCards("1", "2", "3", "4", "5", "6", "7", "8", "9", "10")},
	}
	sink := newMemorySink()
	c := newTestCollector(nil)

	state, outcome, err := c.Collect(context.Background(), session, sink, domain.ScrollState{}, 3, domain.ModeIDsOnly)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if outcome != OutcomeLimitReached {
		t.Fatalf("outcome = %v, want limit_reached", outcome)
	}
	if diff := cmp.Diff([]int64{1, 2, 3}, sink.order); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if state.Collected != 3 || session.scrolls != 0 {
		t.Fatalf("collected=%d scrolls=%d", state.Collected, session.scrolls)
	}
}

func TestCollectSkipsBadCards(t *testing.T) {
	session := &fakeSession{cards: [][]browser.Card{idCards("1", "garbage", "skip", "1", "2")}}
	sink := newMemorySink()
	log := &recordingLogger{}
	c := newTestCollector(log)

	state, _, err := c.Collect(context.Background(), session, sink, domain.ScrollState{}, 0, domain.ModeFull)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2}, sink.order); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if state.Collected != 2 {
		t.Fatalf("duplicates must not count, collected = %d", state.Collected)
	}
	e, ok := log.find("warn", "card skipped")
	if !ok {
		t.Fatalf("expected extraction failure to be logged")
	}
	if got := e.obj.(map[string]any)["error_class"]; got != "extraction_failure" {
		t.Fatalf("error_class = %v", got)
	}
}

func TestCollectWarnsOncePerFailingCard(t *testing.T) {
	session := &fakeSession{
		offsets: []int{10, 20, 20, 20},
		cards:   [][]browser.Card{idCards("garbage", "junk", "1")},
	}
	log := &recordingLogger{}
	c := newTestCollector(log)

	if _, _, err := c.Collect(context.Background(), session, newMemorySink(), domain.ScrollState{}, 0, domain.ModeFull); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if session.cardCalls != 3 {
		t.Fatalf("scans = %d, want 3", session.cardCalls)
	}
	if n := log.count("warn", "card skipped"); n != 2 {
		t.Fatalf("warnings = %d, want one per failing card", n)
	}
	if n := log.count("debug", "card skipped again"); n != 4 {
		t.Fatalf("repeat debug entries = %d, want 4", n)
	}
}

func TestCollectWaitsOutErrorBanner(t *testing.T) {
	session := &fakeSession{
		banners: []bool{true, true, false},
		cards:   [][]browser.Card{idCards("7")},
	}
	sink := newMemorySink()
	c := newTestCollector(nil)

	if _, _, err := c.Collect(context.Background(), session, sink, domain.ScrollState{}, 1, domain.ModeFull); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if session.refreshes != 2 {
		t.Fatalf("refreshes = %d, want 2", session.refreshes)
	}
	if len(sink.order) != 1 {
		t.Fatalf("expected cards to be read after the banner cleared")
	}
}

func TestCollectHonoursCancellationBetweenScrolls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	session := &fakeSession{
		offsets:  []int{1, 2, 3, 4, 5},
		cards:    [][]browser.Card{idCards("1")},
		onScroll: cancel,
	}
	c := newTestCollector(nil)

	_, _, err := c.Collect(ctx, session, newMemorySink(), domain.ScrollState{}, 0, domain.ModeFull)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if session.cardCalls != 1 {
		t.Fatalf("no scan may start after cancellation, got %d", session.cardCalls)
	}
}

func TestNewCollectorDefaults(t *testing.T) {
	c := NewCollector(CollectorOptions{Extractor: idExtractor{}})
	if c.maxStuck != 2 || c.bannerWait != defaultBannerWait {
		t.Fatalf("unexpected defaults: stuck=%d wait=%v", c.maxStuck, c.bannerWait)
	}
	if _, ok := c.pacer.(JitterPacer); !ok {
		t.Fatalf("expected JitterPacer by default")
	}
}
