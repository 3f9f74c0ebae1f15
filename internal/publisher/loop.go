package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/campaign-dashboard/internal/metrics"
	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
)

// DefaultWindowSize is the number of rows fetched per window.
const DefaultWindowSize = 100

// Cursor tracks a publication run. ToColumnValueMax only moves forward and
// only after a window was published.
type Cursor struct {
	ToColumnValueMax *string `json:"toColumnValueMax,omitempty"`
	TotalPublished   int     `json:"totalPublished"`
	Windows          int     `json:"windows"`
}

// Loop publishes a result set window by window until a window comes back
// empty. Delivery is at-least-once: a window that fails after being sent is
// not retried here, and a restarted run resends from the last watermark.
type Loop struct {
	Source     Source
	Sink       Sink
	WindowSize int
	Now        func() time.Time
}

// Run drives the loop. On a fetch or publish failure it stops and returns
// the cursor reached so far along with the error.
func (l *Loop) Run(ctx context.Context) (Cursor, error) {
	size := l.WindowSize
	if size <= 0 {
		size = DefaultWindowSize
	}
	now := l.Now
	if now == nil {
		now = time.Now
	}

	var cur Cursor
	for {
		if err := ctx.Err(); err != nil {
			return cur, err
		}

		rows, err := l.Source.Window(ctx, cur.ToColumnValueMax, size)
		cur.Windows++
		if err != nil {
			metrics.RecordWindow("fetch_error")
			logger.Error("fetch publication window failed", "window", cur.Windows, "error", err)
			return cur, fmt.Errorf("fetch window %d: %w", cur.Windows, err)
		}
		if len(rows) == 0 {
			metrics.RecordWindow("empty")
			return cur, nil
		}

		ts := now()
		events := make([]Event, 0, len(rows))
		max := cur.ToColumnValueMax
		for _, r := range rows {
			events = append(events, NewEvent(r, ts))
			if max == nil || r.To > *max {
				to := r.To
				max = &to
			}
		}

		if err := l.Sink.Publish(ctx, events); err != nil {
			metrics.RecordWindow("publish_error")
			logger.Error("publish window failed", "window", cur.Windows, "events", len(events), "error", err)
			return cur, fmt.Errorf("publish window %d: %w", cur.Windows, err)
		}
		metrics.RecordWindow("published")

		cur.ToColumnValueMax = max
		cur.TotalPublished += len(events)
		logger.Debug("published window", "window", cur.Windows, "events", len(events), "total", cur.TotalPublished)
	}
}
