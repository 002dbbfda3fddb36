package httpclient

import "context"

// Response is what callers read back from a request.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client is the HTTP surface the author lookup and the webhook publisher use.
// Non-2xx statuses are returned as responses, not errors.
type Client interface {
	PostForm(ctx context.Context, url string, form, headers map[string]string) (Response, error)
	Do(ctx context.Context, method, url string, body []byte, headers map[string]string) (Response, error)
}
