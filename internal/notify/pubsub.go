package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSub publishes events to a Pub/Sub topic so downstream pagers and chat
// bridges can fan them out.
type PubSub struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicName string
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub notifier.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// NewPubSub creates a Pub/Sub notifier.
func NewPubSub(ctx context.Context, cfg PubSubConfig) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	return &PubSub{
		client:    client,
		publisher: client.Publisher(cfg.Topic),
		topicName: cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// Notify publishes the event. Failures are logged only; publishing waits at
// most a few seconds so a broker outage cannot stall a switch.
func (p *PubSub) Notify(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to encode notification")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result := p.publisher.Publish(pubCtx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"team":     ev.Team,
			"severity": string(ev.Severity),
		},
	})
	if _, err := result.Get(pubCtx); err != nil {
		p.logger.Warn().Err(err).Str("team", ev.Team).Str("topic", p.topicName).
			Msg("pubsub notification delivery failed")
	}
}

// Close releases the Pub/Sub client.
func (p *PubSub) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
