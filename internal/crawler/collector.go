package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/Adda-Baaj/tweet-harvester/pkg/browser"
)

const (
	defaultBannerWait = 60 * time.Second
	defaultMaxStuck   = 2

	scrollPauseMin = 500 * time.Millisecond
	scrollPauseMax = 1500 * time.Millisecond
)

// Outcome tells why a window stopped collecting. Both values end the window.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeLimitReached
)

func (o Outcome) String() string {
	if o == OutcomeLimitReached {
		return "limit_reached"
	}
	return "done"
}

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Extractor RecordExtractor
	Pacer     Pacer
	// BannerWait is the delay between checks while an error banner is shown.
	BannerWait time.Duration
	// MaxStuck is the number of consecutive unmoved scrolls that ends a window.
	MaxStuck int
	Log      logger.Logger
}

// Collector drives one window: scan the visible cards, scroll for more, stop
// when the page stops moving or the limit is reached.
type Collector struct {
	extractor  RecordExtractor
	pacer      Pacer
	bannerWait time.Duration
	maxStuck   int
	log        logger.Logger
}

func NewCollector(opts CollectorOptions) *Collector {
	c := &Collector{
		extractor:  opts.Extractor,
		pacer:      opts.Pacer,
		bannerWait: opts.BannerWait,
		maxStuck:   opts.MaxStuck,
		log:        logger.Ensure(opts.Log),
	}
	if c.pacer == nil {
		c.pacer = JitterPacer{}
	}
	if c.bannerWait <= 0 {
		c.bannerWait = defaultBannerWait
	}
	if c.maxStuck <= 0 {
		c.maxStuck = defaultMaxStuck
	}
	return c
}

// Collect runs the scan/scroll loop until the page is exhausted or limit
// records were accepted. limit <= 0 means unbounded. The returned state
// reflects the last observed offset.
func (c *Collector) Collect(ctx context.Context, session browser.Session, sink RecordSink, state domain.ScrollState, limit int, mode domain.Mode) (domain.ScrollState, Outcome, error) {
	if c == nil || c.extractor == nil {
		return state, OutcomeDone, errors.New("collector is not initialized")
	}
	if session == nil || sink == nil {
		return state, OutcomeDone, errors.New("collector needs a session and a sink")
	}
	idsOnly := mode == domain.ModeIDsOnly
	reported := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return state, OutcomeDone, err
		}

		if err := c.clearErrorBanner(ctx, session); err != nil {
			return state, OutcomeDone, err
		}
		cards, err := session.Cards(ctx)
		if err != nil {
			return state, OutcomeDone, fmt.Errorf("read cards: %w", err)
		}
		for _, card := range cards {
			rec, ok, err := c.extractor.Extract(ctx, card, idsOnly)
			if err != nil {
				c.reportSkipped(reported, err)
				continue
			}
			if !ok {
				continue
			}
			accepted, err := sink.Offer(ctx, rec)
			if err != nil {
				return state, OutcomeDone, fmt.Errorf("offer record %d: %w", rec.ID, err)
			}
			if accepted {
				state.Collected++
			}
			if limit > 0 && state.Collected >= limit {
				return state, OutcomeLimitReached, nil
			}
		}

		moved, err := c.scroll(ctx, session, &state)
		if err != nil {
			return state, OutcomeDone, err
		}
		c.log.DebugObj("scroll", "scroll_state", map[string]any{
			"offset":    state.ScrollOffset,
			"stuck":     state.StuckCount,
			"collected": state.Collected,
			"moved":     moved,
		})
		if !moved {
			return state, OutcomeDone, nil
		}
	}
}

// reportSkipped warns about an extraction failure the first time it is seen in
// this window. Cards stay visible across scans, so repeats go to debug.
func (c *Collector) reportSkipped(reported map[string]struct{}, err error) {
	fields := map[string]any{
		"error":       err.Error(),
		"error_class": domain.ErrorClass(err),
	}
	if _, seen := reported[err.Error()]; seen {
		c.log.DebugObj("card skipped again", "extract_error", fields)
		return
	}
	reported[err.Error()] = struct{}{}
	c.log.WarnObj("card skipped", "extract_error", fields)
}

// scroll requests more content until the offset moves or the stuck budget is
// spent. It reports whether new content may have loaded.
func (c *Collector) scroll(ctx context.Context, session browser.Session, state *domain.ScrollState) (bool, error) {
	for {
		if err := c.pacer.Pause(ctx, scrollPauseMin, scrollPauseMax); err != nil {
			return false, err
		}
		if err := session.ScrollToBottom(ctx); err != nil {
			return false, fmt.Errorf("scroll: %w", err)
		}
		offset, err := session.ScrollOffset(ctx)
		if err != nil {
			return false, fmt.Errorf("read scroll offset: %w", err)
		}

		if offset != state.ScrollOffset {
			state.ScrollOffset = offset
			state.StuckCount = 0
			return true, nil
		}
		state.StuckCount++
		if state.StuckCount >= c.maxStuck {
			return false, nil
		}
	}
}

// clearErrorBanner waits out the "something went wrong" banner, refreshing
// between checks. It only returns early on cancellation or a session error.
func (c *Collector) clearErrorBanner(ctx context.Context, session browser.Session) error {
	for attempt := 1; ; attempt++ {
		shown, err := session.HasErrorBanner(ctx)
		if err != nil {
			return fmt.Errorf("check error banner: %w", err)
		}
		if !shown {
			return nil
		}

		c.log.WarnObj("error banner shown, waiting", "rate_limit", map[string]any{
			"attempt":     attempt,
			"wait":        c.bannerWait.String(),
			"error_class": domain.ErrorClass(domain.ErrRateLimited),
		})
		if err := c.pacer.Pause(ctx, c.bannerWait, c.bannerWait); err != nil {
			return err
		}
		if err := session.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh after error banner: %w", err)
		}
	}
}
