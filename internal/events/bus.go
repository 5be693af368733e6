// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/docqueue/internal/logging"
	"github.com/tomtom215/docqueue/internal/metrics"
)

// Transport names accepted by NewBus.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// Config selects the transport.
type Config struct {
	Backend       string
	NATSURL       string
	MaxReconnects int
	ReconnectWait time.Duration
	// Buffer is the per-subscriber channel size for the memory transport.
	Buffer int64
}

// Bus publishes and subscribes to Topic.
type Bus struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger watermill.LoggerAdapter
	// shared is set when pub and sub are the same Go channel pub/sub.
	shared bool
}

// NewBus builds the configured transport.
func NewBus(cfg Config) (*Bus, error) {
	logger := watermill.NewSlogLogger(logging.NewComponentSlogLogger("events"))

	switch cfg.Backend {
	case BackendMemory, "":
		buffer := cfg.Buffer
		if buffer <= 0 {
			buffer = 256
		}
		ch := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: buffer,
		}, logger)
		return &Bus{pub: ch, sub: ch, logger: logger, shared: true}, nil

	case BackendNATS:
		natsOpts := []natsgo.Option{
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(cfg.MaxReconnects),
			natsgo.ReconnectWait(cfg.ReconnectWait),
			natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
				if err != nil {
					logger.Error("NATS disconnected", err, nil)
				}
			}),
			natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
				logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
			}),
		}
		pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
			URL:         cfg.NATSURL,
			NatsOptions: natsOpts,
			Marshaler:   &wmNats.NATSMarshaler{},
			JetStream:   wmNats.JetStreamConfig{Disabled: true},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create NATS publisher: %w", err)
		}
		sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
			URL:            cfg.NATSURL,
			NatsOptions:    natsOpts,
			Unmarshaler:    &wmNats.NATSMarshaler{},
			AckWaitTimeout: 30 * time.Second,
			CloseTimeout:   30 * time.Second,
			JetStream:      wmNats.JetStreamConfig{Disabled: true},
		}, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("create NATS subscriber: %w", err)
		}
		return &Bus{pub: pub, sub: sub, logger: logger}, nil

	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

// Publish implements Publisher.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.EventPublishErrors.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("job_id", ev.JobID).Msg("Failed to encode job event")
		return
	}
	msg := message.NewMessage(ev.ID, data)
	msg.Metadata.Set("job_id", ev.JobID)
	msg.Metadata.Set("kind", string(ev.Kind))
	if err := b.pub.Publish(Topic, msg); err != nil {
		metrics.EventPublishErrors.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("job_id", ev.JobID).Str("kind", string(ev.Kind)).Msg("Failed to publish job event")
		return
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
}

// Subscribe decodes events until ctx ends. Undecodable messages are acked
// and skipped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	msgs, err := b.sub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Topic, err)
	}
	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Error("Dropping undecodable job event", err, watermill.LogFields{"uuid": msg.UUID})
				msg.Ack()
				continue
			}
			select {
			case out <- ev:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close shuts down both sides of the transport.
func (b *Bus) Close() error {
	perr := b.pub.Close()
	if !b.shared {
		if err := b.sub.Close(); err != nil && perr == nil {
			perr = err
		}
	}
	return perr
}
