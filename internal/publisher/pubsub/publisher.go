// Package pubsub publishes run summaries to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// Publisher wraps a Pub/Sub client and resolves topics by name.
type Publisher struct {
	client *pubsub.Client
	attrs  map[string]string
}

// New creates a Publisher. attrs are attached to every message.
func New(client *pubsub.Client, attrs map[string]string) *Publisher {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &Publisher{client: client, attrs: copied}
}

// Publish marshals the payload to JSON, publishes it to topic and waits for
// the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: messageAttributes(p.attrs)}

	t := p.client.Topic(topic)
	defer t.Stop()
	id, err := t.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close releases the Pub/Sub client.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

func messageAttributes(base map[string]string) map[string]string {
	attrs := make(map[string]string, len(base)+1)
	for k, v := range base {
		attrs[k] = v
	}
	attrs["content_type"] = "application/json"
	return attrs
}
