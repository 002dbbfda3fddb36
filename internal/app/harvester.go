package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/config"
	"github.com/Adda-Baaj/tweet-harvester/internal/crawler"
	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/Adda-Baaj/tweet-harvester/internal/query"
	"github.com/Adda-Baaj/tweet-harvester/internal/resume"
	"github.com/Adda-Baaj/tweet-harvester/internal/sink"
	"github.com/Adda-Baaj/tweet-harvester/internal/storage"
	"github.com/Adda-Baaj/tweet-harvester/pkg/browser"
	"github.com/Adda-Baaj/tweet-harvester/pkg/extract"
	"github.com/Adda-Baaj/tweet-harvester/pkg/httpclient"
	"github.com/Adda-Baaj/tweet-harvester/pkg/publishers"
	"github.com/Adda-Baaj/tweet-harvester/pkg/userid"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const userIDLookupTimeout = 15 * time.Second

// Browser is a logged-in capable session owned by one crawl attempt.
type Browser interface {
	browser.Session
	Login(ctx context.Context, creds domain.Credentials) error
	Close() error
}

// BrowserFactory starts a fresh browser for each attempt.
type BrowserFactory func(ctx context.Context) (Browser, error)

// Job is one requested crawl: a query over a date range.
type Job struct {
	Query    domain.CrawlQuery
	Since    time.Time
	Until    time.Time
	Interval int
	Limit    int
	Mode     domain.Mode
	SaveDir  string
	// Resume continues from the newest record of an existing output instead
	// of overwriting it.
	Resume bool
}

// Options wires a Harvester. Browsers and Scheduler are required.
type Options struct {
	Job           Job
	Credentials   domain.Credentials
	Browsers      BrowserFactory
	Scheduler     *crawler.Scheduler
	Resume        *resume.Manager
	Store         storage.Store
	Publisher     sink.RecordPublisher
	Restart       backoff.BackOff
	LoginAttempts int
	LoginPause    time.Duration
	Log           logger.Logger
}

// Harvester supervises crawl attempts: it logs in, runs the scheduler over the
// whole range and starts over after any failure until the range completes or
// the context is cancelled.
type Harvester struct {
	job           Job
	creds         domain.Credentials
	browsers      BrowserFactory
	scheduler     *crawler.Scheduler
	resume        *resume.Manager
	store         storage.Store
	publisher     sink.RecordPublisher
	restart       backoff.BackOff
	loginAttempts int
	loginPause    time.Duration
	log           logger.Logger

	timeoutCount int
}

// New validates opts and returns a supervisor.
func New(opts Options) (*Harvester, error) {
	if opts.Browsers == nil {
		return nil, errors.New("browser factory must not be nil")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("scheduler must not be nil")
	}
	if opts.Job.Interval <= 0 {
		return nil, fmt.Errorf("invalid interval %d (must be positive days)", opts.Job.Interval)
	}
	if opts.Job.Since.IsZero() {
		return nil, errors.New("start date is required")
	}
	if opts.Job.Query.Target() == "" {
		return nil, errors.New("query needs words, an account or a hashtag")
	}

	h := &Harvester{
		job:           opts.Job,
		creds:         opts.Credentials,
		browsers:      opts.Browsers,
		scheduler:     opts.Scheduler,
		resume:        opts.Resume,
		store:         opts.Store,
		publisher:     opts.Publisher,
		restart:       opts.Restart,
		loginAttempts: opts.LoginAttempts,
		loginPause:    opts.LoginPause,
		log:           logger.Ensure(opts.Log),
	}
	if h.job.Until.IsZero() {
		h.job.Until = domain.Date(time.Now())
	}
	h.job.Since, h.job.Until = domain.Date(h.job.Since), domain.Date(h.job.Until)
	if h.job.Until.Before(h.job.Since) {
		return nil, fmt.Errorf("end date %s is before start date %s", h.job.Until.Format(domain.DateLayout), h.job.Since.Format(domain.DateLayout))
	}
	if h.resume == nil {
		h.resume = resume.NewManager(h.log)
	}
	if h.restart == nil {
		h.restart = RestartPolicy(nil)
	}
	if h.loginAttempts <= 0 {
		h.loginAttempts = 5
	}
	return h, nil
}

// NewHarvester builds the production supervisor from config: Chrome through
// go-rod, the author id resolver, the seen-id store and any configured
// downstream publishers.
func NewHarvester(ctx context.Context, cfg *config.Config, job Job, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	fanout, err := buildPublishers(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	storeOpts := storage.Options{
		RecordTTL:       cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"record_ttl_seconds":       int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	var authors extract.AuthorResolver
	if job.Mode == domain.ModeFull {
		authors = userid.NewResolver(httpclient.NewRestyClient(userIDLookupTimeout), userid.Options{
			LookupURL: cfg.UserIDLookupURL,
			CacheSize: cfg.UserIDCacheSize,
		})
	}

	collector := crawler.NewCollector(crawler.CollectorOptions{
		Extractor:  extract.New(authors),
		BannerWait: cfg.RateLimitWait,
		Log:        log,
	})
	scheduler := crawler.NewScheduler(crawler.SchedulerOptions{
		Collector: collector,
		BaseURL:   cfg.SearchBaseURL,
		Log:       log,
	})

	var limiter *rate.Limiter
	if cfg.NavigateRatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.NavigateRatePerMinute)), 1)
	}
	browserOpts := browser.Options{
		Headless:        cfg.Headless,
		Bin:             cfg.ChromeBin,
		Proxy:           cfg.Proxy,
		UserAgent:       cfg.UserAgent,
		PageLoadTimeout: cfg.PageLoadTimeout,
		NavigateRetries: cfg.NavigateRetries,
		NavigateWait:    cfg.NavigateWait,
		NavigateLimiter: limiter,
		LoginURL:        cfg.LoginURL,
		OnNavigateRetry: func(url string, err error, wait time.Duration) {
			log.WarnObj("navigation failed, retrying", "navigate_retry", map[string]any{
				"url":   url,
				"error": err.Error(),
				"wait":  wait.String(),
			})
		},
	}
	launch := func(ctx context.Context) (Browser, error) {
		s, err := browser.Launch(ctx, browserOpts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	var publisher sink.RecordPublisher
	if fanout != nil {
		publisher = fanout
	}
	h, err := New(Options{
		Job: job,
		Credentials: domain.Credentials{
			Username: cfg.TwitterUsername,
			Email:    cfg.TwitterEmail,
			Password: cfg.TwitterPassword,
		},
		Browsers:      launch,
		Scheduler:     scheduler,
		Resume:        resume.NewManager(log),
		Store:         store,
		Publisher:     publisher,
		Restart:       RestartPolicy(cfg),
		LoginAttempts: cfg.LoginAttempts,
		LoginPause:    cfg.LoginPause,
		Log:           log,
	})
	if err != nil {
		_ = store.Close()
		_ = fanout.Close()
		return nil, err
	}
	return h, nil
}

func buildPublishers(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		log.InfoObj("no publishers file configured; output is CSV only", "publishers_meta", map[string]any{"count": 0})
		return nil, nil
	}
	reg, err := publishers.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabled := reg.Enabled()
	fanout, err := publishers.BuildFanout(ctx, publishers.DefaultBuilders(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	ids := make([]string, 0, len(enabled))
	for _, cfg := range enabled {
		ids = append(ids, cfg.Type+":"+cfg.ID)
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      fanout.Size(),
		"publishers": ids,
	})
	return fanout, nil
}

// OutputPath is where this harvester writes its records.
func (h *Harvester) OutputPath() string {
	return query.OutputPath(h.job.SaveDir, h.job.Query, h.job.Since, h.job.Until)
}

// TimeoutCount reports how many attempts have failed so far.
func (h *Harvester) TimeoutCount() int { return h.timeoutCount }

// Run supervises attempts until the range is fully collected (nil) or ctx is
// cancelled (ctx.Err()). Failed attempts are retried without limit.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.scheduler == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.release()

	path := h.OutputPath()
	h.restart.Reset()
	h.log.InfoObj("harvester starting", "supervisor_state", map[string]any{
		"state":    "init",
		"target":   h.job.Query.Target(),
		"since":    h.job.Since.Format(domain.DateLayout),
		"until":    h.job.Until.Format(domain.DateLayout),
		"interval": h.job.Interval,
		"mode":     h.job.Mode.String(),
		"output":   path,
	})

	for attempt := 1; ; attempt++ {
		start := time.Now()
		total, err := h.runAttempt(ctx, attempt, path)
		if err == nil {
			h.log.InfoObj("harvest completed", "supervisor_state", map[string]any{
				"state":         "done",
				"attempts":      attempt,
				"timeout_count": h.timeoutCount,
				"collected":     total,
				"elapsed_ms":    time.Since(start).Milliseconds(),
				"output":        path,
			})
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			h.log.InfoObj("harvester stopping", "supervisor_state", map[string]any{
				"state":         "cancelled",
				"attempts":      attempt,
				"timeout_count": h.timeoutCount,
			})
			return ctxErr
		}

		h.timeoutCount++
		wait := h.restart.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("restart policy gave up after %d attempts: %w", attempt, err)
		}
		h.log.ErrorObj("crawl attempt failed", "supervisor_state", map[string]any{
			"state":         "backoff",
			"attempt":       attempt,
			"timeout_count": h.timeoutCount,
			"collected":     total,
			"error":         err.Error(),
			"error_class":   domain.ErrorClass(err),
			"wait":          wait.String(),
		})
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// runAttempt is one pass of logging in followed by the full range. The sink
// and the browser are always closed before it returns.
func (h *Harvester) runAttempt(ctx context.Context, attempt int, path string) (int, error) {
	h.log.InfoObj("starting browser", "supervisor_state", map[string]any{
		"state":   "logging_in",
		"attempt": attempt,
	})
	b, err := h.browsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			h.log.WarnObj("browser close failed", "error", cerr.Error())
		}
	}()

	if err := h.login(ctx, b); err != nil {
		return 0, err
	}

	// Restarts always continue the same file so a failure never discards
	// records that were already written.
	resuming := h.job.Resume || attempt > 1
	since := h.job.Since
	openMode := sink.Create
	var seen []int64
	if resuming {
		if since, err = h.resume.ComputeStart(path, h.job.Since); err != nil {
			return 0, fmt.Errorf("compute resume start: %w", err)
		}
		// The seeded ids cover the overlap with already written windows.
		since = crawler.AlignStart(h.job.Since, since, h.job.Interval)
		if seen, err = h.resume.SeenIDs(path); err != nil {
			return 0, fmt.Errorf("read persisted ids: %w", err)
		}
		openMode = sink.Append
	}

	out, err := sink.Open(path, sink.Options{
		Mode:      h.job.Mode,
		OpenMode:  openMode,
		Store:     h.store,
		Publisher: h.publisher,
		Query:     h.job.Query.Target(),
		Log:       h.log,
	})
	if err != nil {
		return 0, fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			h.log.ErrorObj("output close failed", "sink_meta", map[string]any{
				"path":  path,
				"error": cerr.Error(),
			})
		}
	}()
	out.Seed(seen)

	h.log.InfoObj("crawl running", "supervisor_state", map[string]any{
		"state":     "running",
		"attempt":   attempt,
		"since":     since.Format(domain.DateLayout),
		"resumed":   resuming,
		"known_ids": len(seen),
	})
	run := &crawler.RunContext{
		Session:    b,
		Sink:       out,
		Mode:       h.job.Mode,
		OutputPath: path,
	}
	return h.scheduler.Run(ctx, run, h.job.Query, since, h.job.Until, h.job.Interval, h.job.Limit)
}

// login tries the credentials up to loginAttempts times with a fixed pause.
// Sessions without configured credentials browse anonymously.
func (h *Harvester) login(ctx context.Context, b Browser) error {
	if h.creds.Email == "" && h.creds.Username == "" {
		h.log.WarnObj("no credentials configured; skipping login", "supervisor_state", map[string]any{"state": "logging_in"})
		return nil
	}

	tries := 0
	op := func() error {
		tries++
		return b.Login(ctx, h.creds)
	}
	notify := func(err error, wait time.Duration) {
		h.log.WarnObj("login attempt failed", "login_meta", map[string]any{
			"attempt": tries,
			"error":   err.Error(),
			"wait":    wait.String(),
		})
	}
	if err := backoff.RetryNotify(op, loginPolicy(ctx, h.loginAttempts, h.loginPause), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w after %d attempts: %v", domain.ErrAuthFailed, tries, err)
	}
	h.log.InfoObj("logged in", "login_meta", map[string]any{"attempts": tries})
	return nil
}

// release closes the resources that outlive single attempts.
func (h *Harvester) release() {
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.log.ErrorObj("storage close failed", "error", err.Error())
		}
	}
	if c, ok := h.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			h.log.ErrorObj("publishers close failed", "error", err.Error())
		}
	}
}
