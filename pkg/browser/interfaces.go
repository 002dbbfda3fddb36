package browser

import "context"

// Card is an opaque handle to one rendered record element on the page.
type Card interface {
	HTML(ctx context.Context) (string, error)
}

// Session is the browser surface the crawl drives: one tab, one query at a time.
type Session interface {
	Navigate(ctx context.Context, url string) error
	ScrollToBottom(ctx context.Context) error
	ScrollOffset(ctx context.Context) (int, error)
	Cards(ctx context.Context) ([]Card, error)
	HasErrorBanner(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
}

// HTMLCard is a Card backed by already-captured markup.
type HTMLCard string

func (c HTMLCard) HTML(context.Context) (string, error) { return string(c), nil }
