package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ignite/campaign-dashboard/internal/metrics"
	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
)

// DefaultTopic is the subject SMS events are published on.
const DefaultTopic = "sms.events"

// Metadata keys set on every queued event.
const (
	MetaWhat        = "what"
	MetaAdSetID     = "ad_set_id"
	MetaPlacementID = "placement_id"
)

// QueueSink publishes one message per event on a watermill publisher.
type QueueSink struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[interface{}]
}

// NewQueueSink creates a sink publishing on topic.
func NewQueueSink(publisher message.Publisher, topic string, breaker *gobreaker.CircuitBreaker[interface{}]) *QueueSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &QueueSink{publisher: publisher, topic: topic, breaker: breaker}
}

// Publish implements Sink. The whole window goes out in one Publish call.
func (s *QueueSink) Publish(ctx context.Context, events []Event) error {
	msgs := make([]*message.Message, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msg := message.NewMessage(uuid.NewString(), data)
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		msg.Metadata.Set(MetaWhat, ev.What)
		msg.Metadata.Set(MetaAdSetID, ev.Which)
		msg.Metadata.Set(MetaPlacementID, ev.Props.PlacementID)
		msg.SetContext(ctx)
		msgs = append(msgs, msg)
	}

	var err error
	if s.breaker != nil {
		_, err = s.breaker.Execute(func() (interface{}, error) {
			return nil, s.publisher.Publish(s.topic, msgs...)
		})
	} else {
		err = s.publisher.Publish(s.topic, msgs...)
	}
	if err != nil {
		return fmt.Errorf("publish to %s: %w", s.topic, err)
	}
	metrics.RecordPublished("nats", len(events))
	return nil
}

// NATSConfig holds connection settings for the NATS publisher and
// subscriber.
type NATSConfig struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	QueueGroup      string
	SubscriberCount int
	AckWait         time.Duration
}

func (c NATSConfig) options() []natsgo.Option {
	maxReconnects := c.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}
	wait := c.ReconnectWait
	if wait == 0 {
		wait = 2 * time.Second
	}
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(wait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
}

// NewNATSPublisher opens a core NATS publisher. JetStream is left off: the
// dispatcher consumes with a queue group and redelivery comes from rerunning
// the job.
func NewNATSPublisher(cfg NATSConfig) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: cfg.options(),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, watermill.NewStdLogger(false, false))
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return pub, nil
}

// NewNATSSubscriber opens a queue-group subscriber matching
// NewNATSPublisher.
func NewNATSSubscriber(cfg NATSConfig) (message.Subscriber, error) {
	count := cfg.SubscriberCount
	if count <= 0 {
		count = 1
	}
	ackWait := cfg.AckWait
	if ackWait == 0 {
		ackWait = 30 * time.Second
	}
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: count,
		AckWaitTimeout:   ackWait,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      cfg.options(),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, watermill.NewStdLogger(false, false))
	if err != nil {
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	return sub, nil
}
