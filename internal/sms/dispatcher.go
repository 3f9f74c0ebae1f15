package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
	"github.com/ignite/campaign-dashboard/internal/publisher"
)

// Sender delivers SMS messages. *Client implements it.
type Sender interface {
	Send(ctx context.Context, msgs []Message) (SendResult, error)
}

// Dispatcher turns queued SMS events into provider sends.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher creates a dispatcher over sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Handle is a watermill consumer handler. Malformed or non-SMS payloads are
// logged and acked so they are not redelivered forever; send failures are
// returned so the router retries them.
func (d *Dispatcher) Handle(msg *message.Message) error {
	var ev publisher.Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logger.Warn("dropping malformed sms event", "message_uuid", msg.UUID, "error", err)
		return nil
	}
	if ev.What != publisher.EventWhat {
		logger.Debug("ignoring event", "message_uuid", msg.UUID, "what", ev.What)
		return nil
	}
	to := ev.Props.To
	if to == "" {
		to = ev.Who
	}
	if to == "" || ev.Props.Text == "" {
		logger.Warn("dropping incomplete sms event", "message_uuid", msg.UUID, "ad_set_id", ev.Which)
		return nil
	}

	res, err := d.sender.Send(msg.Context(), []Message{{To: to, From: ev.Props.From, Text: ev.Props.Text}})
	if errors.Is(err, ErrMissingCredentials) {
		logger.Error("sms credentials missing, dropping event", "message_uuid", msg.UUID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("send sms for %s: %w", msg.UUID, err)
	}
	logger.Info("sms dispatched", "to", to, "ad_set_id", ev.Which, "group_ids", res.GroupIDs)
	return nil
}

// RouterConfig configures the dispatch router.
type RouterConfig struct {
	Topic                string
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	CloseTimeout         time.Duration
}

// NewRouter builds a watermill router that feeds sub's topic into d, with
// panic recovery and exponential retry.
func NewRouter(cfg RouterConfig, sub message.Subscriber, d *Dispatcher, wlog watermill.LoggerAdapter) (*message.Router, error) {
	if wlog == nil {
		wlog = watermill.NewStdLogger(false, false)
	}
	if cfg.Topic == "" {
		cfg.Topic = publisher.DefaultTopic
	}
	if cfg.RetryMaxRetries == 0 {
		cfg.RetryMaxRetries = 3
	}
	if cfg.RetryInitialInterval == 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 10 * time.Second
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, wlog)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     10 * cfg.RetryInitialInterval,
		Multiplier:      2,
		Logger:          wlog,
	}
	router.AddMiddleware(retry.Middleware)
	router.AddConsumerHandler("sms-dispatcher", cfg.Topic, sub, d.Handle)
	return router, nil
}
