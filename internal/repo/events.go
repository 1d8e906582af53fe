package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
)

// Event type names published by the campaign engine.
const (
	EventCampaignStarted   = "campaign.started"
	EventCampaignCompleted = "campaign.completed"
	EventCampaignFailed    = "campaign.failed"
	EventTurnCompleted     = "turn.completed"
	EventTurnFailed        = "turn.failed"
)

// EventPublisher is the fire-and-forget notification contract. Publish
// failures are logged by callers and never fail the campaign.
type EventPublisher interface {
	PublishCampaignEvent(ctx context.Context, campaignID, eventType string, payload map[string]any) error
	PublishTurnEvent(ctx context.Context, campaignID, turnID, agentType, traceID, eventType string, payload map[string]any) error
}

// PubSubPublisher implements EventPublisher on Google Pub/Sub.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher constructs a publisher for the given project and topic.
func NewPubSubPublisher(ctx context.Context, projectID, topicName string) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("check topic %s: %w", topicName, err)
	}
	if !exists {
		if topic, err = client.CreateTopic(ctx, topicName); err != nil {
			client.Close()
			return nil, fmt.Errorf("create topic %s: %w", topicName, err)
		}
	}
	return &PubSubPublisher{client: client, topic: topic}, nil
}

// Close flushes pending publishes and releases the client.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// PublishCampaignEvent publishes a campaign lifecycle notification.
func (p *PubSubPublisher) PublishCampaignEvent(ctx context.Context, campaignID, eventType string, payload map[string]any) error {
	return p.publish(ctx, eventType, payload, map[string]string{
		"campaign_id": campaignID,
		"event_type":  eventType,
	})
}

// PublishTurnEvent publishes a turn lifecycle notification.
func (p *PubSubPublisher) PublishTurnEvent(ctx context.Context, campaignID, turnID, agentType, traceID, eventType string, payload map[string]any) error {
	return p.publish(ctx, eventType, payload, map[string]string{
		"campaign_id": campaignID,
		"turn_id":     turnID,
		"agent_type":  agentType,
		"trace_id":    traceID,
		"event_type":  eventType,
	})
}

func (p *PubSubPublisher) publish(ctx context.Context, eventType string, payload map[string]any, attributes map[string]string) error {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["event_type"] = eventType
	payload["published_at"] = time.Now().UTC().Format(time.RFC3339)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// NoopPublisher discards all events; used by tests and local runs without a
// broker.
type NoopPublisher struct{}

// PublishCampaignEvent discards the event.
func (NoopPublisher) PublishCampaignEvent(context.Context, string, string, map[string]any) error {
	return nil
}

// PublishTurnEvent discards the event.
func (NoopPublisher) PublishTurnEvent(context.Context, string, string, string, string, string, map[string]any) error {
	return nil
}
