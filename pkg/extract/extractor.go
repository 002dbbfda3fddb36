// Package extract turns one rendered card into a record.
package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/pkg/browser"

	"github.com/PuerkitoBio/goquery"
)

const replyPrefix = "Replying to"

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// AuthorResolver maps an @handle to a numeric author id.
type AuthorResolver interface {
	Resolve(ctx context.Context, handle string) (string, error)
}

// Extractor parses card markup. The result is a pure function of the markup;
// author ids come from a memoizing resolver.
type Extractor struct {
	authors AuthorResolver
}

// New returns an extractor; a nil resolver leaves AuthorID empty.
func New(authors AuthorResolver) *Extractor {
	return &Extractor{authors: authors}
}

// Extract reads card and returns its record. ok is false when the card carries
// no status link (promoted content, placeholders) or is only a reply marker.
func (e *Extractor) Extract(ctx context.Context, card browser.Card, idsOnly bool) (domain.Record, bool, error) {
	raw, err := card.HTML(ctx)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("%w: read card: %v", domain.ErrExtraction, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("%w: parse card: %v", domain.ErrExtraction, err)
	}

	id, ok := statusID(doc)
	if !ok {
		return domain.Record{}, false, nil
	}
	if idsOnly {
		return domain.Record{ID: id}, true, nil
	}

	text, ok := tweetText(doc)
	if !ok {
		return domain.Record{}, false, nil
	}

	rec := domain.Record{ID: id, Text: text}
	if ts, exists := doc.Find("time").First().Attr("datetime"); exists {
		rec.Timestamp = strings.TrimSpace(ts)
	}
	if handle := authorHandle(doc); handle != "" && e.authors != nil {
		if authorID, err := e.authors.Resolve(ctx, handle); err == nil {
			rec.AuthorID = authorID
		}
	}
	return rec, true, nil
}

// statusID returns the numeric id of the first ".../status/<id>" link.
func statusID(doc *goquery.Document) (int64, bool) {
	var (
		id    int64
		found bool
	)
	doc.Find(`a[href*="/status/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if v, ok := parseStatusID(href); ok {
			id, found = v, true
			return false
		}
		return true
	})
	return id, found
}

func parseStatusID(href string) (int64, bool) {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	parts := strings.Split(strings.Trim(href, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] != "status" {
			continue
		}
		id, err := strconv.ParseInt(parts[i+1], 10, 64)
		if err != nil || id <= 0 {
			return 0, false
		}
		return id, true
	}
	return 0, false
}

func authorHandle(doc *goquery.Document) string {
	var handle string
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); strings.HasPrefix(t, "@") && !strings.ContainsAny(t, " \n") {
			handle = t
			return false
		}
		return true
	})
	return handle
}

// tweetText returns the flattened body. A card whose only text block is the
// "Replying to" marker yields ok=false.
func tweetText(doc *goquery.Document) (string, bool) {
	blocks := doc.Find(`div[data-testid="tweetText"]`)
	if blocks.Length() == 0 {
		return "", true
	}
	var (
		text  string
		found bool
	)
	blocks.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if strings.HasPrefix(t, replyPrefix) {
			return true
		}
		text, found = flatten.Replace(t), true
		return false
	})
	return text, found
}
