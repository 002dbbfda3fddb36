package userid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/pkg/httpclient"
)

type stubHTTPResponse struct {
	body       []byte
	statusCode int
}

func (s stubHTTPResponse) Body() []byte    { return s.body }
func (s stubHTTPResponse) StatusCode() int { return s.statusCode }

// countingClient answers PostForm with a fixed response and counts calls.
type countingClient struct {
	resp  httpclient.Response
	err   error
	calls int
	form  map[string]string
}

func (c *countingClient) Do(context.Context, string, string, []byte, map[string]string) (httpclient.Response, error) {
	return nil, errors.New("unexpected request")
}

func (c *countingClient) PostForm(_ context.Context, _ string, form map[string]string, _ map[string]string) (httpclient.Response, error) {
	c.calls++
	c.form = form
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

func TestResolveMemoizesLookups(t *testing.T) {
	client := &countingClient{resp: stubHTTPResponse{body: []byte("11348282\n"), statusCode: 200}}
	r := NewResolver(client, Options{})

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(context.Background(), "NASA")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if id != "11348282" {
			t.Fatalf("id = %q", id)
		}
	}
	if client.calls != 1 {
		t.Fatalf("expected 1 lookup, got %d", client.calls)
	}
	if client.form["input"] != "@nasa" {
		t.Fatalf("unexpected form %#v", client.form)
	}
}

func TestResolveRejectsNonNumericBody(t *testing.T) {
	client := &countingClient{resp: stubHTTPResponse{body: []byte("error"), statusCode: 200}}
	r := NewResolver(client, Options{})
	if _, err := r.Resolve(context.Background(), "@ghost"); err == nil {
		t.Fatalf("expected error for non-numeric body")
	}
}

func TestResolveRemembersFailuresUntilRetryTTL(t *testing.T) {
	client := &countingClient{err: errors.New("dial tcp: i/o timeout")}
	r := NewResolver(client, Options{RetryTTL: 50 * time.Millisecond})

	for i := 0; i < 5; i++ {
		if _, err := r.Resolve(context.Background(), "@nasa"); err == nil {
			t.Fatalf("expected lookup error")
		}
	}
	if client.calls != 1 {
		t.Fatalf("failed handle looked up %d times, want 1", client.calls)
	}

	time.Sleep(120 * time.Millisecond)
	client.err = nil
	client.resp = stubHTTPResponse{body: []byte("11348282"), statusCode: 200}
	id, err := r.Resolve(context.Background(), "@nasa")
	if err != nil || id != "11348282" {
		t.Fatalf("Resolve after retry ttl: id=%q err=%v", id, err)
	}
	if client.calls != 2 {
		t.Fatalf("calls = %d, want 2", client.calls)
	}
}

func TestResolveDoesNotRememberCancellation(t *testing.T) {
	client := &countingClient{err: context.Canceled}
	r := NewResolver(client, Options{})
	for i := 0; i < 2; i++ {
		if _, err := r.Resolve(context.Background(), "@nasa"); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v", err)
		}
	}
	if client.calls != 2 {
		t.Fatalf("cancelled lookups must be retried, calls = %d", client.calls)
	}
}

func TestResolveStatusAndTransportErrors(t *testing.T) {
	r := NewResolver(&countingClient{resp: stubHTTPResponse{statusCode: 503}}, Options{})
	if _, err := r.Resolve(context.Background(), "a"); err == nil {
		t.Fatalf("expected status error")
	}

	r = NewResolver(&countingClient{err: errors.New("dial tcp")}, Options{})
	if _, err := r.Resolve(context.Background(), "a"); err == nil {
		t.Fatalf("expected transport error")
	}

	if _, err := r.Resolve(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty handle")
	}
}
