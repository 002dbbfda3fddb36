package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/time/rate"
)

const (
	cardSelector      = `article[data-testid="tweet"]`
	errorBannerText   = "Something went wrong"
	emailSelector     = `input[autocomplete="username"]`
	challengeSelector = `input[data-testid="ocfEnterTextTextInput"]`
	passwordSelector  = `input[autocomplete="current-password"]`

	defaultLoginURL        = "https://twitter.com/i/flow/login"
	defaultPageLoadTimeout = 100 * time.Second
	defaultNavigateRetries = 3
	defaultNavigateWait    = 10 * time.Second
	defaultLoginSettle     = 15 * time.Second
	defaultLoginStep       = 4 * time.Second
)

// Options configures the Chrome instance and the page-level retry policy.
type Options struct {
	Headless        bool
	Bin             string
	Proxy           string
	UserAgent       string
	ShowImages      bool
	PageLoadTimeout time.Duration
	NavigateRetries int
	NavigateWait    time.Duration
	// NavigateLimiter paces navigations; nil means unlimited.
	NavigateLimiter *rate.Limiter
	LoginURL        string
	LoginSettle     time.Duration
	LoginStep       time.Duration
	// OnNavigateRetry is called before each navigation retry.
	OnNavigateRetry func(url string, err error, wait time.Duration)
}

func (o Options) normalized() Options {
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = defaultPageLoadTimeout
	}
	if o.NavigateRetries <= 0 {
		o.NavigateRetries = defaultNavigateRetries
	}
	if o.NavigateWait <= 0 {
		o.NavigateWait = defaultNavigateWait
	}
	if strings.TrimSpace(o.LoginURL) == "" {
		o.LoginURL = defaultLoginURL
	}
	if o.LoginSettle <= 0 {
		o.LoginSettle = defaultLoginSettle
	}
	if o.LoginStep <= 0 {
		o.LoginStep = defaultLoginStep
	}
	return o
}

// RodSession drives a single Chrome tab through go-rod.
type RodSession struct {
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Launch starts Chrome and opens the tab used for the whole session.
func Launch(ctx context.Context, opts Options) (*RodSession, error) {
	opts = opts.normalized()

	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		Set("window-size", "1920,1080").
		Set("disable-extensions").
		Set("log-level", "3")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	if !opts.ShowImages {
		l = l.Set("blink-settings", "imagesEnabled=false")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open page: %w", err)
	}
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			_ = b.Close()
			l.Cleanup()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	return &RodSession{opts: opts, launcher: l, browser: b, page: page}, nil
}

// Navigate loads url, retrying timeouts with a fixed wait. Failures that survive
// every attempt are reported as domain.ErrTransientNetwork.
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	if s.opts.NavigateLimiter != nil {
		if err := s.opts.NavigateLimiter.Wait(ctx); err != nil {
			return err
		}
	}

	op := func() error {
		p := s.page.Context(ctx).Timeout(s.opts.PageLoadTimeout)
		defer p.CancelTimeout()
		if err := p.Navigate(url); err != nil {
			return err
		}
		return p.WaitLoad()
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.NavigateWait), uint64(s.opts.NavigateRetries-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		if s.opts.OnNavigateRetry != nil {
			s.opts.OnNavigateRetry(url, err, wait)
		}
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("navigate %s after %d attempts: %w: %w", url, s.opts.NavigateRetries, domain.ErrTransientNetwork, err)
	}
	return nil
}

// ScrollToBottom scrolls the window to the end of the document.
func (s *RodSession) ScrollToBottom(ctx context.Context) error {
	if _, err := s.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

// ScrollOffset returns the vertical scroll position of the window.
func (s *RodSession) ScrollOffset(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => window.pageYOffset`)
	if err != nil {
		return 0, fmt.Errorf("read scroll offset: %w", err)
	}
	return res.Value.Int(), nil
}

// Cards returns the record elements currently rendered.
func (s *RodSession) Cards(ctx context.Context) ([]Card, error) {
	els, err := s.page.Context(ctx).Elements(cardSelector)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}
	cards := make([]Card, 0, len(els))
	for _, el := range els {
		cards = append(cards, rodCard{el: el})
	}
	return cards, nil
}

// HasErrorBanner reports whether the throttling banner is shown.
func (s *RodSession) HasErrorBanner(ctx context.Context) (bool, error) {
	has, _, err := s.page.Context(ctx).HasR("span", errorBannerText)
	if err != nil {
		return false, fmt.Errorf("check error banner: %w", err)
	}
	return has, nil
}

// Refresh reloads the current page.
func (s *RodSession) Refresh(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.opts.PageLoadTimeout)
	defer p.CancelTimeout()
	if err := p.Reload(); err != nil {
		return fmt.Errorf("reload page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("reload page: %w", err)
	}
	return nil
}

// Login walks the login flow once, including the unusual-activity username
// challenge. Callers own the retry policy.
func (s *RodSession) Login(ctx context.Context, creds domain.Credentials) error {
	if creds.Email == "" && creds.Username == "" {
		return errors.New("login requires an email or username")
	}
	identifier := creds.Email
	if identifier == "" {
		identifier = creds.Username
	}

	p := s.page.Context(ctx).Timeout(s.opts.PageLoadTimeout)
	defer p.CancelTimeout()

	if err := p.Navigate(s.opts.LoginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := s.pause(ctx, s.opts.LoginSettle); err != nil {
		return err
	}

	emailEl, err := p.Element(emailSelector)
	if err != nil {
		return fmt.Errorf("find email input: %w", err)
	}
	if err := s.typeAndSubmit(ctx, emailEl, identifier); err != nil {
		return fmt.Errorf("submit email: %w", err)
	}

	if has, challengeEl, err := p.Has(challengeSelector); err != nil {
		return fmt.Errorf("check username challenge: %w", err)
	} else if has {
		if err := s.typeAndSubmit(ctx, challengeEl, creds.Username); err != nil {
			return fmt.Errorf("submit username challenge: %w", err)
		}
	}

	passwordEl, err := p.Element(passwordSelector)
	if err != nil {
		return fmt.Errorf("find password input: %w", err)
	}
	if err := s.typeAndSubmit(ctx, passwordEl, creds.Password); err != nil {
		return fmt.Errorf("submit password: %w", err)
	}
	return nil
}

// Close shuts Chrome down and removes its profile directory.
func (s *RodSession) Close() error {
	if s == nil || s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	s.browser = nil
	return err
}

func (s *RodSession) typeAndSubmit(ctx context.Context, el *rod.Element, text string) error {
	if err := s.pause(ctx, s.opts.LoginStep); err != nil {
		return err
	}
	if err := el.Input(text); err != nil {
		return err
	}
	if err := s.pause(ctx, s.opts.LoginStep); err != nil {
		return err
	}
	if err := el.Type(input.Enter); err != nil {
		return err
	}
	return s.pause(ctx, s.opts.LoginStep)
}

// pause sleeps for base plus up to one second of jitter.
func (s *RodSession) pause(ctx context.Context, base time.Duration) error {
	d := base + time.Duration(rand.Int63n(int64(time.Second)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type rodCard struct {
	el *rod.Element
}

func (c rodCard) HTML(ctx context.Context) (string, error) {
	return c.el.Context(ctx).HTML()
}
