// Package userid resolves @handles to numeric account ids through a public lookup endpoint.
package userid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/pkg/httpclient"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultLookupURL = "https://tweeterid.com/ajax.php"

	defaultCacheSize = 1000
	defaultCacheTTL  = 24 * time.Hour
	defaultRetryTTL  = 5 * time.Minute
	defaultTimeout   = 15 * time.Second
)

// Options configures a Resolver.
type Options struct {
	LookupURL string
	CacheSize int
	CacheTTL  time.Duration
	// RetryTTL is how long a failed lookup is remembered before the handle
	// is tried again.
	RetryTTL time.Duration
	Headers  map[string]string
}

// Resolver looks handles up and memoizes the answers. Failures are kept for
// a shorter time so a down endpoint costs one request per handle per RetryTTL.
type Resolver struct {
	client   httpclient.Client
	url      string
	headers  map[string]string
	cache    *expirable.LRU[string, string]
	failures *expirable.LRU[string, error]
}

// NewResolver builds a resolver over client (or a default resty client).
func NewResolver(client httpclient.Client, opts Options) *Resolver {
	if client == nil {
		client = httpclient.NewRestyClient(defaultTimeout)
	}
	if strings.TrimSpace(opts.LookupURL) == "" {
		opts.LookupURL = DefaultLookupURL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.RetryTTL <= 0 {
		opts.RetryTTL = defaultRetryTTL
	}
	headers := map[string]string{
		"Accept":       "*/*",
		"Content-Type": "application/x-www-form-urlencoded; charset=UTF-8",
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Resolver{
		client:   client,
		url:      opts.LookupURL,
		headers:  headers,
		cache:    expirable.NewLRU[string, string](opts.CacheSize, nil, opts.CacheTTL),
		failures: expirable.NewLRU[string, error](opts.CacheSize, nil, opts.RetryTTL),
	}
}

// Resolve returns the numeric id of handle as a decimal string.
func (r *Resolver) Resolve(ctx context.Context, handle string) (string, error) {
	handle = normalizeHandle(handle)
	if handle == "" {
		return "", fmt.Errorf("empty handle")
	}
	if id, ok := r.cache.Get(handle); ok {
		return id, nil
	}
	if err, ok := r.failures.Get(handle); ok {
		return "", err
	}

	id, err := r.lookup(ctx, handle)
	if err != nil {
		// A cancelled caller says nothing about the endpoint.
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			r.failures.Add(handle, err)
		}
		return "", err
	}
	r.cache.Add(handle, id)
	return id, nil
}

func (r *Resolver) lookup(ctx context.Context, handle string) (string, error) {
	resp, err := r.client.PostForm(ctx, r.url, map[string]string{"input": handle}, r.headers)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", handle, err)
	}
	body := strings.TrimSpace(string(resp.Body()))
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("lookup %s returned status %d body: %s", handle, resp.StatusCode(), snippet(body))
	}

	id, err := strconv.ParseInt(body, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("lookup %s returned non-numeric body: %s", handle, snippet(body))
	}
	return strconv.FormatInt(id, 10), nil
}

func normalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(h, "@") {
		h = "@" + h
	}
	return strings.ToLower(h)
}

func snippet(s string) string {
	const maxLen = 256
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
