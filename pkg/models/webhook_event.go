package models

import (
	"time"

	"github.com/flaboy/aira-billing/pkg/database"
)

// Webhook事件状态
const (
	WebhookEventStatusPending   = "pending"
	WebhookEventStatusProcessed = "processed"
	WebhookEventStatusFailed    = "failed"
)

// WebhookEvent 入站事件记录。业务处理前先落库为 pending，
// 处理结束后流转到 processed / failed，终态不再变更。
type WebhookEvent struct {
	ID      uint   `gorm:"primaryKey"`
	EventID string `gorm:"size:40;uniqueIndex"` // 内部事件ID

	EventType             string `gorm:"size:50;index"`
	GatewayPaymentID      string `gorm:"size:100;index"`
	GatewaySubscriptionID string `gorm:"size:100;index"`

	Payload string `gorm:"type:text"` // 原始报文JSON

	Status       string `gorm:"size:20;index"`
	ErrorMessage string `gorm:"size:500"`
	RetryCount   int

	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

func (w *WebhookEvent) TableName() string {
	return "ar_webhook_events"
}

func init() {
	database.RegisterAutoMigrateModels(&WebhookEvent{})
}
