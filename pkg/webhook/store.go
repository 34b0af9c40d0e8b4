package webhook

import (
	"time"

	"github.com/flaboy/aira-billing/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventStore 入站事件的持久化与生命周期管理
type EventStore struct {
	db *gorm.DB
}

func NewEventStore(db *gorm.DB) *EventStore {
	return &EventStore{db: db}
}

// FindProcessed 幂等检查：同一 (event, paymentID, subscriptionID) 元组
// 已有 processed 记录则返回该记录。两个ID都为空时元组无意义，不做匹配。
func (s *EventStore) FindProcessed(eventType, gatewayPaymentID, gatewaySubscriptionID string) (*models.WebhookEvent, error) {
	if gatewayPaymentID == "" && gatewaySubscriptionID == "" {
		return nil, nil
	}

	var row models.WebhookEvent
	err := s.db.Where(
		"event_type = ? AND gateway_payment_id = ? AND gateway_subscription_id = ? AND status = ?",
		eventType, gatewayPaymentID, gatewaySubscriptionID, models.WebhookEventStatusProcessed,
	).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

// CreatePending 业务处理前先落库，处理中崩溃也有迹可查
func (s *EventStore) CreatePending(ev *InboundEvent) (*models.WebhookEvent, error) {
	row := &models.WebhookEvent{
		EventID:               uuid.NewString(),
		EventType:             ev.Type,
		GatewayPaymentID:      ev.PaymentID,
		GatewaySubscriptionID: ev.SubscriptionID,
		Payload:               string(ev.Raw),
		Status:                models.WebhookEventStatusPending,
		ReceivedAt:            time.Now(),
	}
	if err := s.db.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (s *EventStore) MarkProcessed(row *models.WebhookEvent) error {
	now := time.Now()
	return s.db.Model(row).Updates(map[string]interface{}{
		"status":       models.WebhookEventStatusProcessed,
		"processed_at": now,
	}).Error
}

// MarkFailed 记录失败原因，重试次数按同元组历史失败数累计
func (s *EventStore) MarkFailed(row *models.WebhookEvent, errMsg string) error {
	var priorFailures int64
	s.db.Model(&models.WebhookEvent{}).Where(
		"event_type = ? AND gateway_payment_id = ? AND gateway_subscription_id = ? AND status = ? AND id <> ?",
		row.EventType, row.GatewayPaymentID, row.GatewaySubscriptionID, models.WebhookEventStatusFailed, row.ID,
	).Count(&priorFailures)

	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}

	now := time.Now()
	return s.db.Model(row).Updates(map[string]interface{}{
		"status":        models.WebhookEventStatusFailed,
		"error_message": errMsg,
		"retry_count":   priorFailures + 1,
		"processed_at":  now,
	}).Error
}
