package publisher

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
)

// RedisPublisher emits domain events to a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event *entity.DomainEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// LogPublisher writes domain events to the structured log. Used when
// no event transport is configured.
type LogPublisher struct {
	logger logrus.FieldLogger
}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: factory.NewModuleLogger("billing-publisher")}
}

func (p *LogPublisher) Publish(_ context.Context, event *entity.DomainEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event":             event.Name,
		"tenant_id":         event.TenantID,
		"provider":          event.Provider,
		"provider_event_id": event.ProviderEventID,
	}).Info("domain_event")
	return nil
}
