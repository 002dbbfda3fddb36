// Package query turns a crawl query and a date window into a navigable search URL
// and derives the output file path of a crawl.
package query

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
)

// DefaultBaseURL is the search endpoint used when no base is configured.
const DefaultBaseURL = "https://twitter.com/search"

// Build returns the search URL for q restricted to w. Operator tokens are
// pre-encoded and user values are query-escaped so the result is a single
// navigable URL.
func Build(base string, q domain.CrawlQuery, w domain.Window) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseURL
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("?q=")

	if words := nonEmpty(q.Words); len(words) > 0 {
		escaped := make([]string, len(words))
		for i, w := range words {
			escaped[i] = escape(w)
		}
		b.WriteString("(" + strings.Join(escaped, "%20OR%20") + ")%20")
	}
	if q.FromAccount != "" {
		b.WriteString("(from%3A" + escape(q.FromAccount) + ")%20")
	}
	if q.ToAccount != "" {
		b.WriteString("(to%3A" + escape(q.ToAccount) + ")%20")
	}
	if q.MentionAccount != "" {
		b.WriteString("(%40" + escape(q.MentionAccount) + ")%20")
	}
	if q.Hashtag != "" {
		b.WriteString("(%23" + escape(q.Hashtag) + ")%20")
	}

	b.WriteString("until%3A" + w.Until.Format(domain.DateLayout) + "%20")
	b.WriteString("since%3A" + w.Since.Format(domain.DateLayout) + "%20")

	if q.Lang != "" {
		b.WriteString("lang%3A" + escape(q.Lang))
	}
	if q.FilterReplies {
		b.WriteString("%20-filter%3Areplies")
	}
	if q.Geocode != "" {
		b.WriteString("%20geocode%3A" + escape(q.Geocode))
	}
	writeMin(&b, "min_replies", q.MinReplies)
	writeMin(&b, "min_faves", q.MinLikes)
	writeMin(&b, "min_retweets", q.MinRetweets)

	b.WriteString("&src=typed_query")

	switch domain.DisplayMode(strings.ToLower(string(q.Display))) {
	case domain.DisplayLatest:
		b.WriteString("&f=live")
	case domain.DisplayImage:
		b.WriteString("&f=image")
	}
	if q.Proximity {
		b.WriteString("&lf=on")
	}

	return b.String()
}

// OutputPath returns the deterministic CSV path for a crawl of q over [since, until].
// Resumed runs resolve to the same file as the run they continue.
func OutputPath(dir string, q domain.CrawlQuery, since, until time.Time) string {
	name := q.Target() + "_" + since.Format(domain.DateLayout) + "_" + until.Format(domain.DateLayout) + ".csv"
	return filepath.Join(dir, name)
}

// SplitWords splits the CLI word argument on the "//" separator.
func SplitWords(raw string) []string {
	return nonEmpty(strings.Split(raw, "//"))
}

func writeMin(b *strings.Builder, op string, v *int) {
	if v == nil {
		return
	}
	b.WriteString("%20" + op + "%3A" + strconv.Itoa(*v))
}

func escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(v)), "+", "%20")
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
