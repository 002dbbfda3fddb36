// Package resume decides where an interrupted crawl picks up again.
package resume

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
	"github.com/Adda-Baaj/tweet-harvester/internal/logger"
)

const (
	idColumn        = "tweet_id"
	timestampColumn = "timestamp"
)

// Manager reads a previous run's output.
type Manager struct {
	log logger.Logger
}

func NewManager(log logger.Logger) *Manager {
	return &Manager{log: logger.Ensure(log)}
}

// ComputeStart returns the date of the newest persisted record in path, or
// since when there is nothing to resume from: no file, no rows, or no
// timestamp column.
func (m *Manager) ComputeStart(path string, since time.Time) (time.Time, error) {
	since = domain.Date(since)

	var latest time.Time
	skipped := 0
	err := scan(path, func(header map[string]int, row []string) {
		idx, ok := header[timestampColumn]
		if !ok || idx >= len(row) {
			return
		}
		ts, err := parseTimestamp(row[idx])
		if err != nil {
			skipped++
			return
		}
		if ts.After(latest) {
			latest = ts
		}
	})
	if errors.Is(err, fs.ErrNotExist) {
		return since, nil
	}
	if err != nil {
		return since, err
	}
	if skipped > 0 {
		m.log.WarnObj("unparseable timestamps ignored", "resume_meta", map[string]any{
			"path":    path,
			"skipped": skipped,
		})
	}
	if latest.IsZero() {
		return since, nil
	}

	start := domain.Date(latest.UTC())
	m.log.InfoObj("resuming from previous output", "resume_meta", map[string]any{
		"path":  path,
		"since": start.Format(domain.DateLayout),
	})
	return start, nil
}

// SeenIDs returns every id already persisted in path. A missing file yields
// no ids.
func (m *Manager) SeenIDs(path string) ([]int64, error) {
	var ids []int64
	err := scan(path, func(header map[string]int, row []string) {
		idx, ok := header[idColumn]
		if !ok || idx >= len(row) {
			return
		}
		id, err := strconv.ParseInt(strings.TrimSpace(row[idx]), 10, 64)
		if err != nil {
			return
		}
		ids = append(ids, id)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return ids, err
}

// scan calls fn for every data row of the CSV at path with a column index
// built from its header. Rows of the wrong width are tolerated.
func scan(path string, fn func(header map[string]int, row []string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	first, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	header := make(map[string]int, len(first))
	for i, name := range first {
		header[strings.TrimSpace(name)] = i
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		fn(header, row)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	domain.DateLayout,
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
