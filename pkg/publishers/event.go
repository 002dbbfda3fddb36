package publishers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Adda-Baaj/tweet-harvester/internal/domain"
)

// Event is the payload every publisher sends for one accepted record.
type Event struct {
	Query       string        `json:"query"`
	Window      domain.Window `json:"window"`
	Record      domain.Record `json:"record"`
	CollectedAt time.Time     `json:"collected_at"`
}

// NewEvent stamps rec with the query and window it was collected under.
func NewEvent(query string, window domain.Window, rec domain.Record) Event {
	return Event{
		Query:       query,
		Window:      window,
		Record:      rec,
		CollectedAt: time.Now().UTC(),
	}
}

func (e Event) body() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event for record %d: %w", e.Record.ID, err)
	}
	return b, nil
}

// attributes are the routing keys copied onto message metadata so consumers
// can filter without decoding the body.
func (e Event) attributes() map[string]string {
	attrs := map[string]string{
		"record_id": strconv.FormatInt(e.Record.ID, 10),
		"query":     e.Query,
	}
	if !e.Window.Since.IsZero() {
		attrs["window"] = e.Window.String()
	}
	return attrs
}
