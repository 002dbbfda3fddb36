package publishers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
	"github.com/Adda-Baaj/tweet-harvester/pkg/httpclient"
)

const errorBodyLimit = 256

// httpPublisher posts each event as JSON to a webhook.
type httpPublisher struct {
	id      string
	method  string
	url     string
	headers map[string]string
	client  httpclient.Client
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, _ logger.Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q: http block is required", cfg.ID)
	}
	return &httpPublisher{
		id:      cfg.ID,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  httpclient.NewRestyClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }
func (h *httpPublisher) Close() error { return nil }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.body()
	if err != nil {
		return err
	}
	headers := map[string]string{"Content-Type": "application/json"}
	for k, v := range h.headers {
		headers[k] = v
	}
	for k, v := range evt.attributes() {
		headers[attributeHeader(k)] = v
	}

	resp, err := h.client.Do(ctx, h.method, h.url, body, headers)
	if err != nil {
		return fmt.Errorf("%s %s: %w", h.method, h.url, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		snippet := resp.Body()
		if len(snippet) > errorBodyLimit {
			snippet = snippet[:errorBodyLimit]
		}
		return fmt.Errorf("%s %s: status %d: %s", h.method, h.url, code, snippet)
	}
	return nil
}

// attributeHeader maps an attribute key such as record_id to X-Record-Id.
func attributeHeader(key string) string {
	return http.CanonicalHeaderKey("x-" + strings.ReplaceAll(key, "_", "-"))
}
