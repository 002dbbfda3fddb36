package domain

import (
	"strings"
	"time"
)

// Domain contains core models shared by the crawler, sink and supervisor.

// DateLayout is the date-only layout used by search operators and output file names.
const DateLayout = "2006-01-02"

// Record is one collected post. Identity is ID.
type Record struct {
	ID        int64  `json:"id"`
	AuthorID  string `json:"author_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Mode selects which columns are extracted and persisted.
type Mode int

const (
	ModeFull Mode = iota
	ModeIDsOnly
)

// Columns returns the output header for the mode.
func (m Mode) Columns() []string {
	if m == ModeIDsOnly {
		return []string{"tweet_id"}
	}
	return []string{"tweet_id", "user_id", "timestamp", "text"}
}

func (m Mode) String() string {
	if m == ModeIDsOnly {
		return "ids_only"
	}
	return "full"
}

// Window is the half-open date range [Since, Until) of one search.
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

func (w Window) String() string {
	return w.Since.Format(DateLayout) + ".." + w.Until.Format(DateLayout)
}

// Date truncates t to midnight UTC of its calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// DisplayMode is the result tab of the search page.
type DisplayMode string

const (
	DisplayTop    DisplayMode = "top"
	DisplayLatest DisplayMode = "latest"
	DisplayImage  DisplayMode = "image"
)

// CrawlQuery holds the immutable search parameters of a crawl.
type CrawlQuery struct {
	Words          []string    `json:"words,omitempty"`
	FromAccount    string      `json:"from_account,omitempty"`
	ToAccount      string      `json:"to_account,omitempty"`
	MentionAccount string      `json:"mention_account,omitempty"`
	Hashtag        string      `json:"hashtag,omitempty"`
	Lang           string      `json:"lang,omitempty"`
	Display        DisplayMode `json:"display,omitempty"`
	FilterReplies  bool        `json:"filter_replies,omitempty"`
	Proximity      bool        `json:"proximity,omitempty"`
	Geocode        string      `json:"geocode,omitempty"`
	MinReplies     *int        `json:"min_replies,omitempty"`
	MinLikes       *int        `json:"min_likes,omitempty"`
	MinRetweets    *int        `json:"min_retweets,omitempty"`
}

// Target returns the primary search target used to name the output file.
func (q CrawlQuery) Target() string {
	switch {
	case len(q.Words) > 0:
		return strings.Join(q.Words, "_")
	case q.FromAccount != "":
		return q.FromAccount
	case q.ToAccount != "":
		return q.ToAccount
	case q.MentionAccount != "":
		return q.MentionAccount
	case q.Hashtag != "":
		return q.Hashtag
	}
	return ""
}

// ScrollState tracks the infinite-scroll progress of one window.
type ScrollState struct {
	ScrollOffset int `json:"scroll_offset"`
	StuckCount   int `json:"stuck_count"`
	Collected    int `json:"collected"`
}

// Credentials are the account details handed to the login capability.
type Credentials struct {
	Username string
	Email    string
	Password string
}
