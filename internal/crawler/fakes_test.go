package crawler

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/pkg/browser"
)

// fakeSession replays scripted page behaviour. Slices are consumed one value
// per call; the last value repeats once exhausted.
type fakeSession struct {
	navigated []string
	navErr    error

	cards   [][]browser.Card
	offsets []int
	banners []bool

	cardCalls   int
	offsetCalls int
	scrolls     int
	refreshes   int

	onScroll func()
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakeSession) ScrollToBottom(context.Context) error {
	f.scrolls++
	if f.onScroll != nil {
		f.onScroll()
	}
	return nil
}

func (f *fakeSession) ScrollOffset(context.Context) (int, error) {
	v := 0
	if len(f.offsets) > 0 {
		v = f.offsets[min(f.offsetCalls, len(f.offsets)-1)]
	}
	f.offsetCalls++
	return v, nil
}

func (f *fakeSession) Cards(context.Context) ([]browser.Card, error) {
	var v []browser.Card
	if len(f.cards) > 0 {
		v = f.cards[min(f.cardCalls, len(f.cards)-1)]
	}
	f.cardCalls++
	return v, nil
}

func (f *fakeSession) HasErrorBanner(context.Context) (bool, error) {
	if len(f.banners) == 0 {
		return false, nil
	}
	v := f.banners[0]
	f.banners = f.banners[1:]
	return v, nil
}

func (f *fakeSession) Refresh(context.Context) error {
	f.refreshes++
	return nil
}

// idExtractor reads the card markup as a decimal id. "skip" yields no record,
// anything else unparseable is an extraction failure.
type idExtractor struct{}

func (idExtractor) Extract(ctx context.Context, card browser.Card, _ bool) (domain.Record, bool, error) {
	raw, _ := card.HTML(ctx)
	if raw == "skip" {
		return domain.Record{}, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return domain.Record{}, false, errors.Join(domain.ErrExtraction, err)
	}
	return domain.Record{ID: id}, true, nil
}

type memorySink struct {
	mu      sync.Mutex
	seen    map[int64]bool
	order   []int64
	windows []domain.Window
}

func newMemorySink() *memorySink { return &memorySink{seen: map[int64]bool{}} }

func (m *memorySink) Offer(_ context.Context, rec domain.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[rec.ID] {
		return false, nil
	}
	m.seen[rec.ID] = true
	m.order = append(m.order, rec.ID)
	return true, nil
}

func (m *memorySink) SetWindow(w domain.Window) {
	m.mu.Lock()
	m.windows = append(m.windows, w)
	m.mu.Unlock()
}

type logEntry struct {
	level, msg string
	obj        interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (r *recordingLogger) add(level, msg string, obj interface{}) {
	r.mu.Lock()
	r.entries = append(r.entries, logEntry{level: level, msg: msg, obj: obj})
	r.mu.Unlock()
}

func (r *recordingLogger) InfoObj(msg, _ string, obj interface{})  { r.add("info", msg, obj) }
func (r *recordingLogger) DebugObj(msg, _ string, obj interface{}) { r.add("debug", msg, obj) }
func (r *recordingLogger) WarnObj(msg, _ string, obj interface{})  { r.add("warn", msg, obj) }
func (r *recordingLogger) ErrorObj(msg, _ string, obj interface{}) { r.add("error", msg, obj) }

func (r *recordingLogger) find(level, msg string) (logEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.level == level && e.msg == msg {
			return e, true
		}
	}
	return logEntry{}, false
}

func (r *recordingLogger) count(level, msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.level == level && e.msg == msg {
			n++
		}
	}
	return n
}

func idCards(ids ...string) []browser.Card {
	out := make([]browser.Card, len(ids))
	for i, id := range ids {
		out[i] = browser.HTMLCard(id)
	}
	return out
}

func newTestCollector(log *recordingLogger) *Collector {
	opts := CollectorOptions{Extractor: idExtractor{}, Pacer: NopPacer{}}
	if log != nil {
		opts.Log = log
	}
	return NewCollector(opts)
}
