// Package sms sends text messages through Solapi and consumes queued SMS
// events.
package sms

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/campaign-dashboard/internal/metrics"
	"github.com/ignite/campaign-dashboard/internal/pkg/httpretry"
	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
)

const (
	// DefaultBaseURL is the Solapi API root.
	DefaultBaseURL = "https://api.solapi.com"
	sendManyPath   = "/messages/v4/send-many/detail"

	// MaxBatch is the largest number of messages sent in one request.
	MaxBatch = 10000
)

// ErrMissingCredentials is returned when no API key or secret is set.
var ErrMissingCredentials = errors.New("sms: api key and secret are required")

// Message is a single outbound SMS.
type Message struct {
	To   string `json:"to"`
	From string `json:"from"`
	Text string `json:"text"`
}

// Config holds Solapi credentials.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// SendResult summarizes one or more send-many calls.
type SendResult struct {
	GroupIDs  []string `json:"groupIds"`
	Total     int      `json:"total"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

type sendManyResponse struct {
	GroupInfo struct {
		ID    string `json:"_id"`
		Count struct {
			Total             int `json:"total"`
			RegisteredSuccess int `json:"registeredSuccess"`
			RegisteredFailed  int `json:"registeredFailed"`
		} `json:"count"`
	} `json:"groupInfo"`
	FailedMessageList []json.RawMessage `json:"failedMessageList"`
}

// Client talks to the Solapi messages API.
type Client struct {
	cfg  Config
	http httpretry.HTTPDoer
	now  func() time.Time
	salt func() string
}

// NewClient creates a client. A nil doer gets a retrying http.Client.
func NewClient(cfg Config, doer httpretry.HTTPDoer) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if doer == nil {
		doer = httpretry.NewRetryClient(&http.Client{Timeout: 10 * time.Second}, 3)
	}
	return &Client{cfg: cfg, http: doer, now: time.Now, salt: randomSalt}
}

// Signature is hex(HMAC-SHA256(secret, date+salt)).
func Signature(secret, date, salt string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(date + salt))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authorization builds the HMAC-SHA256 Authorization header value.
func Authorization(apiKey, apiSecret, date, salt string) string {
	return fmt.Sprintf("HMAC-SHA256 apiKey=%s, date=%s, salt=%s, signature=%s",
		apiKey, date, salt, Signature(apiSecret, date, salt))
}

func randomSalt() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Send delivers messages in batches of at most MaxBatch. It stops at the
// first failed batch and returns what was sent so far.
func (c *Client) Send(ctx context.Context, msgs []Message) (SendResult, error) {
	var res SendResult
	if c.cfg.APIKey == "" || c.cfg.APISecret == "" {
		return res, ErrMissingCredentials
	}
	for start := 0; start < len(msgs); start += MaxBatch {
		end := min(start+MaxBatch, len(msgs))
		out, err := c.sendMany(ctx, msgs[start:end])
		if err != nil {
			metrics.RecordSMS("error", end-start)
			return res, err
		}
		res.GroupIDs = append(res.GroupIDs, out.GroupInfo.ID)
		res.Total += end - start
		failed := max(out.GroupInfo.Count.RegisteredFailed, len(out.FailedMessageList))
		res.Failed += failed
		res.Succeeded += end - start - failed
		metrics.RecordSMS("sent", end-start-failed)
		if failed > 0 {
			metrics.RecordSMS("rejected", failed)
			logger.Warn("sms batch partially rejected", "group_id", out.GroupInfo.ID, "failed", failed)
		}
	}
	return res, nil
}

func (c *Client) sendMany(ctx context.Context, batch []Message) (sendManyResponse, error) {
	var out sendManyResponse
	body, err := json.Marshal(map[string][]Message{"messages": batch})
	if err != nil {
		return out, fmt.Errorf("marshal messages: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + sendManyPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("build send request: %w", err)
	}
	date := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("Authorization", Authorization(c.cfg.APIKey, c.cfg.APISecret, date, c.salt()))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("send messages: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("read send response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, fmt.Errorf("solapi returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode send response: %w", err)
	}
	return out, nil
}
