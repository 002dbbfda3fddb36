package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/Adda-Baaj/tweet-harvester/internal/query"
	"github.com/Adda-Baaj/tweet-harvester/pkg/browser"
)

const (
	windowPauseMin = time.Second
	windowPauseMax = 3 * time.Second
	settlePauseMin = 500 * time.Millisecond
	settlePauseMax = 1500 * time.Millisecond
)

// RunContext is the state of one crawl attempt. The supervisor owns it and
// hands it to the scheduler; nothing here is shared between attempts.
type RunContext struct {
	Session    browser.Session
	Sink       RecordSink
	Mode       domain.Mode
	OutputPath string
}

// WindowResult is reported once per finished window.
type WindowResult struct {
	Window    domain.Window
	URL       string
	State     domain.ScrollState
	Outcome   Outcome
	Collected int
}

// WindowObserver is notified after each window completes.
type WindowObserver func(WindowResult)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Collector *Collector
	BaseURL   string
	Pacer     Pacer
	Observer  WindowObserver
	Log       logger.Logger
}

// Scheduler splits a date range into fixed windows and collects them in order.
// It never retries; failures go back to the caller.
type Scheduler struct {
	collector *Collector
	baseURL   string
	pacer     Pacer
	observer  WindowObserver
	log       logger.Logger
}

func NewScheduler(opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		collector: opts.Collector,
		baseURL:   opts.BaseURL,
		pacer:     opts.Pacer,
		observer:  opts.Observer,
		log:       logger.Ensure(opts.Log),
	}
	if s.baseURL == "" {
		s.baseURL = query.DefaultBaseURL
	}
	if s.pacer == nil {
		s.pacer = JitterPacer{}
	}
	return s
}

// Windows returns the full windows of [since, until) stepping interval days.
// A trailing range shorter than interval is not included.
func Windows(since, until time.Time, interval int) []domain.Window {
	if interval <= 0 {
		return nil
	}
	since, until = domain.Date(since), domain.Date(until)
	var out []domain.Window
	for cur := since; ; cur = cur.AddDate(0, 0, interval) {
		next := cur.AddDate(0, 0, interval)
		if next.After(until) {
			return out
		}
		out = append(out, domain.Window{Since: cur, Until: next})
	}
}

// AlignStart moves t back onto the window grid that starts at origin, so a
// resumed crawl keeps the same window boundaries as the first attempt. Times
// before origin map to origin.
func AlignStart(origin, t time.Time, interval int) time.Time {
	origin, t = domain.Date(origin), domain.Date(t)
	if interval <= 0 || !t.After(origin) {
		return origin
	}
	days := int(t.Sub(origin).Hours()) / 24
	return origin.AddDate(0, 0, days/interval*interval)
}

// Run collects every window between since and until and returns the number of
// records accepted. A zero until means today. limit caps records per window;
// limit <= 0 is unbounded.
func (s *Scheduler) Run(ctx context.Context, run *RunContext, q domain.CrawlQuery, since, until time.Time, interval int, limit int) (int, error) {
	if s == nil || s.collector == nil {
		return 0, errors.New("scheduler is not initialized")
	}
	if run == nil || run.Session == nil || run.Sink == nil {
		return 0, errors.New("run context needs a session and a sink")
	}
	if interval <= 0 {
		return 0, fmt.Errorf("invalid interval %d (must be positive days)", interval)
	}
	if until.IsZero() {
		until = time.Now()
	}
	since, until = domain.Date(since), domain.Date(until)

	windows := Windows(since, until, interval)
	covered := since
	if n := len(windows); n > 0 {
		covered = windows[n-1].Until
	}
	if covered.Before(until) {
		s.log.WarnObj("trailing partial window dropped", "window_meta", map[string]any{
			"since":    covered.Format(domain.DateLayout),
			"until":    until.Format(domain.DateLayout),
			"interval": interval,
		})
	}

	total := 0
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.runWindow(ctx, run, q, w, limit)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Scheduler) runWindow(ctx context.Context, run *RunContext, q domain.CrawlQuery, w domain.Window, limit int) (int, error) {
	run.Sink.SetWindow(w)
	if err := s.pacer.Pause(ctx, windowPauseMin, windowPauseMax); err != nil {
		return 0, err
	}

	url := query.Build(s.baseURL, q, w)
	s.log.InfoObj("window started", "window_meta", map[string]any{
		"since":  w.Since.Format(domain.DateLayout),
		"until":  w.Until.Format(domain.DateLayout),
		"url":    url,
		"output": run.OutputPath,
	})
	if err := run.Session.Navigate(ctx, url); err != nil {
		return 0, fmt.Errorf("navigate window %s: %w", w, err)
	}
	if err := s.pacer.Pause(ctx, settlePauseMin, settlePauseMax); err != nil {
		return 0, err
	}

	offset, err := run.Session.ScrollOffset(ctx)
	if err != nil {
		return 0, fmt.Errorf("read scroll offset for window %s: %w", w, err)
	}
	state, outcome, err := s.collector.Collect(ctx, run.Session, run.Sink, domain.ScrollState{ScrollOffset: offset}, limit, run.Mode)
	if err != nil {
		return state.Collected, err
	}

	s.log.InfoObj("window finished", "window_meta", map[string]any{
		"since":     w.Since.Format(domain.DateLayout),
		"until":     w.Until.Format(domain.DateLayout),
		"collected": state.Collected,
		"outcome":   outcome.String(),
	})
	if s.observer != nil {
		s.observer(WindowResult{
			Window:    w,
			URL:       url,
			State:     state,
			Outcome:   outcome,
			Collected: state.Collected,
		})
	}
	return state.Collected, nil
}
