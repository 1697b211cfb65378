package redisstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"live-session/internal/domain"
)

// DefaultBroadcastChannel 是所有实例共享的广播频道
const DefaultBroadcastChannel = "live:broadcast"

// PubSubRelay 通过 Redis pub/sub 把广播转发给所有 hub 实例。
// 发布是 fire-and-forget 的，没有投递确认。
type PubSubRelay struct {
	client  *redis.Client
	channel string
}

func NewPubSubRelay(client *redis.Client, channel string) *PubSubRelay {
	if client == nil {
		panic("redis client cannot be nil for PubSubRelay")
	}
	if channel == "" {
		channel = DefaultBroadcastChannel
	}
	return &PubSubRelay{client: client, channel: channel}
}

// Publish 发布一条广播
func (p *PubSubRelay) Publish(ctx context.Context, msg domain.Broadcast) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal broadcast for %s: %w", msg.Destination, err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

// Listen 订阅广播频道并对每条消息调用 handle，直到 ctx 结束。
func (p *PubSubRelay) Listen(ctx context.Context, handle func(domain.Broadcast)) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	// 等待订阅确认，保证返回前已经在监听
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: failed to subscribe to %s: %w", p.channel, err)
	}
	logrus.WithField("channel", p.channel).Info("Broadcast relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg domain.Broadcast
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logrus.WithError(err).Warn("Dropping malformed broadcast")
				continue
			}
			handle(msg)
		}
	}
}
