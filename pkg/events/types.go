package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionChangedEvent 订阅状态变更，通知实时推送渠道
type SubscriptionChangedEvent struct {
	AccountID          uint      `json:"account_id"`
	Plan               string    `json:"plan"`
	BillingCycle       string    `json:"billing_cycle"`
	SubscriptionStatus string    `json:"subscription_status"`
	ChangedAt          time.Time `json:"changed_at"`
}

// CreditsChangedEvent 积分余额变更
type CreditsChangedEvent struct {
	AccountID      uint      `json:"account_id"`
	Delta          int64     `json:"delta"`
	CreditsBalance int64     `json:"credits_balance"`
	Source         string    `json:"source"`
	ChangedAt      time.Time `json:"changed_at"`
}

// PaymentConfirmedEvent 支付首次确认
type PaymentConfirmedEvent struct {
	AccountID        uint             `json:"account_id"`
	PaymentID        uint             `json:"payment_id"`
	GatewayPaymentID string           `json:"gateway_payment_id"`
	Type             string           `json:"type"`
	Value            *decimal.Decimal `json:"value"`
	ConfirmedAt      time.Time        `json:"confirmed_at"`
}
