package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/leadscout"
)

// PubSub carries ScrapeJob messages over a Google Cloud Pub/Sub topic.
// Publishing waits for the server ack so the dispatcher can run its
// compensating worker release on synchronous enqueue failure. Delivery is
// at-least-once; the subscription's retry policy and dead-letter topic bound
// redelivery.
type PubSub struct {
	client       *pubsub.Client
	topic        *pubsub.Topic
	subscription *pubsub.Subscription
	logger       *zap.Logger
}

// PubSubConfig identifies the topic and subscription to attach to.
type PubSubConfig struct {
	ProjectID    string
	TopicID      string
	Subscription string
}

// NewPubSub creates a Pub/Sub client and verifies the topic exists. It
// authenticates using Application Default Credentials.
func NewPubSub(ctx context.Context, cfg PubSubConfig, logger *zap.Logger) (*PubSub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.TopicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}

	p := &PubSub{
		client: client,
		topic:  topic,
		logger: logger,
	}
	if cfg.Subscription != "" {
		p.subscription = client.Subscription(cfg.Subscription)
	}
	return p, nil
}

// Enqueue publishes one ScrapeJob as a JSON payload and blocks until the
// server acknowledges it or the context ends.
func (p *PubSub) Enqueue(ctx context.Context, job leadscout.ScrapeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal scrape job: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"platform": string(job.Platform),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish scrape job: %w", err)
	}
	return nil
}

// Consume blocks, delivering jobs to the handler until the context finishes.
// The Pub/Sub client invokes the handler concurrently across messages. A
// handler error nacks the message for redelivery; a malformed payload is
// acked and dropped since replaying it can never succeed.
func (p *PubSub) Consume(ctx context.Context, handle func(context.Context, leadscout.ScrapeJob) error) error {
	if p.subscription == nil {
		return fmt.Errorf("pubsub subscription is not configured")
	}
	err := p.subscription.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var job leadscout.ScrapeJob
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			p.logger.Error("drop malformed scrape job payload",
				zap.String("message_id", msg.ID),
				zap.Error(err))
			msg.Ack()
			return
		}
		if err := handle(msgCtx, job); err != nil {
			p.logger.Warn("scrape job handler failed, nacking for redelivery",
				zap.String("message_id", msg.ID),
				zap.String("target_id", job.TargetID),
				zap.Error(err))
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive scrape jobs: %w", err)
	}
	return nil
}

// Close stops the topic publisher and closes the client connection.
func (p *PubSub) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
