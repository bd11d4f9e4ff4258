// Package publisher sends transition events to a watermill topic.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	nc "github.com/nats-io/nats.go"

	"github.com/M3-org/clanktank-sub000/internal/domain/model"
	"github.com/M3-org/clanktank-sub000/pkg/logger"
)

// TopicTransitioned carries every applied status transition.
const TopicTransitioned = "submission.transitioned"

// Metadata keys set on every message.
const (
	MetaSubmissionID = "submission_id"
	MetaFrom         = "from"
	MetaTo           = "to"
)

// Publisher encodes transition events as JSON watermill messages.
type Publisher struct {
	pub   message.Publisher
	topic string
	log   logger.Logger
}

// Option applies a configuration option to the Publisher.
type Option func(*Publisher)

// WithTopic overrides the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(log logger.Logger) Option {
	return func(p *Publisher) {
		if log != nil {
			p.log = log
		}
	}
}

// New wraps a watermill publisher.
func New(pub message.Publisher, opts ...Option) *Publisher {
	p := &Publisher{pub: pub, topic: TopicTransitioned, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends ev to the configured topic.
func (p *Publisher) Publish(ctx context.Context, ev model.TransitionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode transition: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaSubmissionID, ev.SubmissionID)
	msg.Metadata.Set(MetaFrom, ev.From.String())
	msg.Metadata.Set(MetaTo, ev.To.String())
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// Decode reads a transition event back from a message payload.
func Decode(msg *message.Message) (model.TransitionEvent, error) {
	var ev model.TransitionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return model.TransitionEvent{}, fmt.Errorf("decode transition %s: %w", msg.UUID, err)
	}
	return ev, nil
}

// NewGoChannel returns an in-process pub/sub. Subscribers must use the same
// instance.
func NewGoChannel(log logger.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewLoggerAdapter(log))
}

// NewNATS connects a core NATS publisher to url.
func NewNATS(url string, log logger.Logger) (message.Publisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("nats url is empty")
	}
	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:       url,
		Marshaler: &nats.NATSMarshaler{},
		NatsOptions: []nc.Option{
			nc.Name("clanktank-scoring"),
			nc.RetryOnFailedConnect(true),
		},
		JetStream: nats.JetStreamConfig{Disabled: true},
	}, NewLoggerAdapter(log))
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return pub, nil
}
