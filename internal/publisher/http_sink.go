package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ignite/campaign-dashboard/internal/metrics"
	"github.com/ignite/campaign-dashboard/internal/pkg/httpretry"
)

// DefaultPublishURL is the event server endpoint used when none is set.
const DefaultPublishURL = "http://localhost:8181/publishes/sms/abc"

// HTTPSink POSTs each window as a JSON array to the event server.
type HTTPSink struct {
	url     string
	client  httpretry.HTTPDoer
	breaker *gobreaker.CircuitBreaker[interface{}]
}

// NewHTTPSink creates a sink for url. client is usually a
// *httpretry.RetryClient; breaker may be nil.
func NewHTTPSink(url string, client httpretry.HTTPDoer, breaker *gobreaker.CircuitBreaker[interface{}]) *HTTPSink {
	if url == "" {
		url = DefaultPublishURL
	}
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &HTTPSink{url: url, client: client, breaker: breaker}
}

// Publish implements Sink. Any non-2xx response is an error.
func (s *HTTPSink) Publish(ctx context.Context, events []Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	send := func() (interface{}, error) {
		return nil, s.post(ctx, body)
	}
	if s.breaker != nil {
		_, err = s.breaker.Execute(send)
	} else {
		_, err = send()
	}
	if err != nil {
		return err
	}
	metrics.RecordPublished("http", len(events))
	return nil
}

func (s *HTTPSink) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("event server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
