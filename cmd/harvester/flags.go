package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/app"
	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/internal/query"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultSaveDir = "outputs"

var timeNow = time.Now

// flags mirrors the command line before it is turned into an app.Job.
type flags struct {
	start    string
	end      string
	interval int

	account string
	hashtag string
	words   string
	to      string
	mention string

	lang          string
	display       string
	filterReplies bool
	proximity     bool
	geocode       string
	minReplies    int
	minLikes      int
	minRetweets   int

	headless bool
	onlyID   bool
	resume   bool
	limit    int
	saveDir  string
	envFile  string
}

func (f *flags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.start, "start", "s", "", "first day to collect (YYYY-MM-DD)")
	fs.StringVarP(&f.end, "end", "e", "", "day to stop before (YYYY-MM-DD, default today)")
	fs.IntVarP(&f.interval, "interval", "i", 1, "window size in days")

	fs.StringVarP(&f.account, "account", "a", "", "collect records posted by this account")
	fs.StringVar(&f.hashtag, "hashtag", "", "collect records carrying this hashtag")
	fs.StringVarP(&f.words, "word", "w", "", "collect records matching any of these words, separated by //")
	fs.StringVar(&f.to, "to", "", "only records replying to this account")
	fs.StringVar(&f.mention, "mention", "", "only records mentioning this account")

	fs.StringVar(&f.lang, "lang", "", "language code filter, e.g. en")
	fs.StringVar(&f.display, "display", string(domain.DisplayTop), "result tab: top, latest or image")
	fs.BoolVar(&f.filterReplies, "filter-replies", false, "exclude replies")
	fs.BoolVar(&f.proximity, "proximity", false, "prefer results near the caller")
	fs.StringVar(&f.geocode, "geocode", "", "lat,long,radius filter, e.g. 36.7,3.05,50km")
	fs.IntVar(&f.minReplies, "min-replies", 0, "minimum number of replies")
	fs.IntVar(&f.minLikes, "min-likes", 0, "minimum number of likes")
	fs.IntVar(&f.minRetweets, "min-retweets", 0, "minimum number of reposts")

	fs.BoolVar(&f.headless, "headless", true, "run Chrome without a window")
	fs.BoolVar(&f.onlyID, "only-id", false, "write record ids only")
	fs.BoolVar(&f.resume, "resume", false, "continue an existing output from its newest record")
	fs.IntVar(&f.limit, "limit", 0, "maximum records per window (0 for no limit)")
	fs.StringVar(&f.saveDir, "save-dir", defaultSaveDir, "directory for the CSV output")
	fs.StringVar(&f.envFile, "env", "", "dotenv file with credentials and settings")

	_ = cmd.MarkFlagRequired("start")
	cmd.MarkFlagsMutuallyExclusive("account", "hashtag", "word")
	cmd.MarkFlagsOneRequired("account", "hashtag", "word")
}

// job validates the parsed flags. fs reports which optional thresholds were set.
func (f flags) job(fs *pflag.FlagSet) (app.Job, error) {
	since, err := domain.ParseDate(f.start)
	if err != nil {
		return app.Job{}, fmt.Errorf("invalid --start %q: %w", f.start, err)
	}
	until := domain.Date(timeNow())
	if strings.TrimSpace(f.end) != "" {
		if until, err = domain.ParseDate(f.end); err != nil {
			return app.Job{}, fmt.Errorf("invalid --end %q: %w", f.end, err)
		}
	}
	if f.interval <= 0 {
		return app.Job{}, fmt.Errorf("invalid --interval %d (must be positive days)", f.interval)
	}
	if f.limit < 0 {
		return app.Job{}, fmt.Errorf("invalid --limit %d", f.limit)
	}

	targets := 0
	for _, v := range []string{f.account, f.hashtag, f.words} {
		if strings.TrimSpace(v) != "" {
			targets++
		}
	}
	if targets != 1 {
		return app.Job{}, errors.New("exactly one of --account, --hashtag or --word is required")
	}

	display := domain.DisplayMode(strings.ToLower(strings.TrimSpace(f.display)))
	switch display {
	case domain.DisplayTop, domain.DisplayLatest, domain.DisplayImage:
	default:
		return app.Job{}, fmt.Errorf("invalid --display %q (top, latest or image)", f.display)
	}

	q := domain.CrawlQuery{
		Words:          query.SplitWords(f.words),
		FromAccount:    strings.TrimPrefix(strings.TrimSpace(f.account), "@"),
		ToAccount:      strings.TrimPrefix(strings.TrimSpace(f.to), "@"),
		MentionAccount: strings.TrimPrefix(strings.TrimSpace(f.mention), "@"),
		Hashtag:        strings.TrimPrefix(strings.TrimSpace(f.hashtag), "#"),
		Lang:           strings.TrimSpace(f.lang),
		Display:        display,
		FilterReplies:  f.filterReplies,
		Proximity:      f.proximity,
		Geocode:        strings.TrimSpace(f.geocode),
		MinReplies:     changedInt(fs, "min-replies", f.minReplies),
		MinLikes:       changedInt(fs, "min-likes", f.minLikes),
		MinRetweets:    changedInt(fs, "min-retweets", f.minRetweets),
	}
	if q.Target() == "" {
		return app.Job{}, errors.New("search target is empty")
	}

	mode := domain.ModeFull
	if f.onlyID {
		mode = domain.ModeIDsOnly
	}
	return app.Job{
		Query:    q,
		Since:    since,
		Until:    until,
		Interval: f.interval,
		Limit:    f.limit,
		Mode:     mode,
		SaveDir:  f.saveDir,
		Resume:   f.resume,
	}, nil
}

func changedInt(fs *pflag.FlagSet, name string, v int) *int {
	if fs == nil || !fs.Changed(name) {
		return nil
	}
	return &v
}
