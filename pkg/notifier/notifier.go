package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flaboy/aira-billing/pkg/events"
	"github.com/redis/go-redis/v9"
)

// RedisNotifier 通过 redis pub/sub 向实时推送渠道广播账户状态变更。
// 所有失败只记录日志，绝不向事件处理流程传播。
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(addr, password string, db int) *RedisNotifier {
	return &RedisNotifier{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (n *RedisNotifier) OnSubscriptionChanged(event *events.SubscriptionChangedEvent) error {
	n.publish(event.AccountID, "subscription_changed", event)
	return nil
}

func (n *RedisNotifier) OnCreditsChanged(event *events.CreditsChangedEvent) error {
	n.publish(event.AccountID, "credits_changed", event)
	return nil
}

func (n *RedisNotifier) OnPaymentConfirmed(event *events.PaymentConfirmedEvent) error {
	n.publish(event.AccountID, "payment_confirmed", event)
	return nil
}

func (n *RedisNotifier) publish(accountID uint, kind string, payload interface{}) {
	message := map[string]interface{}{
		"type": kind,
		"data": payload,
	}
	data, err := json.Marshal(message)
	if err != nil {
		slog.Error("[Notifier] Failed to marshal message", "type", kind, "error", err)
		return
	}

	channel := fmt.Sprintf("billing:account:%d", accountID)
	if err := n.client.Publish(context.Background(), channel, data).Err(); err != nil {
		slog.Warn("[Notifier] Failed to publish state change", "channel", channel, "type", kind, "error", err)
	}
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
