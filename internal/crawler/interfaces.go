package crawler

import (
	"context"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/pkg/browser"
)

// RecordExtractor turns one card into a record. ok is false for cards that
// carry no record.
type RecordExtractor interface {
	Extract(ctx context.Context, card browser.Card, idsOnly bool) (domain.Record, bool, error)
}

// RecordSink accepts records; it is the only dedup guard of a run.
type RecordSink interface {
	Offer(ctx context.Context, rec domain.Record) (bool, error)
	SetWindow(w domain.Window)
}
