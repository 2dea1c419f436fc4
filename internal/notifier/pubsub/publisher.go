// Package pubsub mirrors new records to a Google Cloud Pub/Sub topic so other
// systems can consume announcements without scraping.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

// Publisher implements monitor.Notifier on top of a Pub/Sub topic.
type Publisher struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{topic: topic, logger: logger}
}

// Publish marshals the record to JSON and waits for the server-assigned id.
func (p *Publisher) Publish(ctx context.Context, rec monitor.Record) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"news_id": rec.ID},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Notify publishes rec and reports success.
func (p *Publisher) Notify(ctx context.Context, rec monitor.Record) bool {
	id, err := p.Publish(ctx, rec)
	if err != nil {
		p.logger.Error("pubsub publish failed", zap.String("news_id", rec.ID), zap.Error(err))
		return false
	}
	p.logger.Debug("record published", zap.String("news_id", rec.ID), zap.String("message_id", id))
	return true
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
