// Package publisher turns a processed job's result rows into outbound
// events, window by window, and hands them to a sink (an HTTP endpoint or a
// NATS subject).
package publisher

import (
	"context"
	"time"

	"github.com/ignite/campaign-dashboard/internal/smsjob"
)

// EventWhat names the event emitted for each recipient.
const EventWhat = smsjob.EventWhat

// Event is the envelope understood by the downstream event server.
type Event struct {
	When  int64      `json:"when"`
	Who   string     `json:"who"`
	What  string     `json:"what"`
	Which string     `json:"which"`
	Props EventProps `json:"props"`
}

// EventProps carries what the SMS dispatcher needs to send the message.
type EventProps struct {
	PlacementID string `json:"placementId"`
	From        string `json:"from"`
	To          string `json:"to"`
	Text        string `json:"text"`
}

// Row is one line of a job's result table.
type Row struct {
	PlacementID string
	AdSetID     string
	From        string
	To          string
	Message     string
}

// NewEvent builds the event for row at time now.
func NewEvent(row Row, now time.Time) Event {
	return Event{
		When:  now.UnixMilli(),
		Who:   row.To,
		What:  EventWhat,
		Which: row.AdSetID,
		Props: EventProps{
			PlacementID: row.PlacementID,
			From:        row.From,
			To:          row.To,
			Text:        row.Message,
		},
	}
}

// Source returns up to size rows ordered by recipient, strictly after the
// after watermark when it is non-nil.
type Source interface {
	Window(ctx context.Context, after *string, size int) ([]Row, error)
}

// Sink delivers one window of events.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
}
